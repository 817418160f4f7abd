package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Jeffail/gabs/v2"
)

// Action is the unit of pipeline logic. Implementations consume a registry
// snapshot and return a new one; they never mutate their input. Actions are
// executed through Execute/ExecuteAsync, which handle short-circuiting,
// observation and error augmentation, so Run bodies contain only the
// action's own behavior.
type Action interface {
	Name() string
	Description() string
	Run(data ActionData) (ActionData, error)
	RunAsync(ctx context.Context, data ActionData) (ActionData, error)
}

// base carries the name/description pair shared by every built-in action.
type base struct {
	name        string
	description string
}

func (b base) Name() string        { return b.name }
func (b base) Description() string { return b.description }

// system marks composite control-flow actions so timing observers do not
// double count the work of their children.
type system struct{}

func (system) isSystemAction() bool { return true }

type systemMarker interface{ isSystemAction() bool }

// IsSystemAction reports whether the action is a composite control-flow
// node rather than a unit of business logic.
func IsSystemAction(a Action) bool {
	s, ok := a.(systemMarker)
	return ok && s.isSystemAction()
}

// Execute runs one action synchronously: it passes the snapshot through
// untouched when the short-circuit flag is set, records start/end on the
// attached observers, optionally type-checks the chained containers in
// strict mode, and augments any returned error with execution context.
func Execute(a Action, data ActionData) (ActionData, error) {
	if data.Skipped() {
		return data, nil
	}
	if err := checkChainInput(a, data); err != nil {
		return data, err
	}
	data.RecordStart(a)
	result, err := a.Run(data)
	if err != nil {
		return data, contextualize(a, data, err)
	}
	if err := checkChainOutput(a, data, result); err != nil {
		return data, err
	}
	result.RecordEnd(a)
	return result, nil
}

// ExecuteAsync is Execute under the cooperative scheduling model.
func ExecuteAsync(ctx context.Context, a Action, data ActionData) (ActionData, error) {
	if data.Skipped() {
		return data, nil
	}
	if err := checkChainInput(a, data); err != nil {
		return data, err
	}
	data.RecordStart(a)
	result, err := a.RunAsync(ctx, data)
	if err != nil {
		return data, contextualize(a, data, err)
	}
	if err := checkChainOutput(a, data, result); err != nil {
		return data, err
	}
	result.RecordEnd(a)
	return result, nil
}

// RunWith is a shortcut for running an action without building the
// container first.
func RunWith(a Action, data Values) (ActionData, error) {
	return Execute(a, Create(data))
}

// RunWithAsync is RunWith under the cooperative scheduling model.
func RunWithAsync(ctx context.Context, a Action, data Values) (ActionData, error) {
	return ExecuteAsync(ctx, a, Create(data))
}

func checkChainInput(a Action, data ActionData) error {
	if data.Config().StrictChainChecks && !data.initialized {
		return fmt.Errorf("%w: input of %s is not a container built by this package",
			ErrNotProperlyConfigured, a.Name())
	}
	return nil
}

func checkChainOutput(a Action, in, out ActionData) error {
	if in.Config().StrictChainChecks && !out.initialized {
		return fmt.Errorf("%w: output of %s is not a container built by this package",
			ErrNotProperlyConfigured, a.Name())
	}
	return nil
}

// contextualize augments an action error with the observer log, a dump of
// the registry and the failing action's parameters. An error already
// carrying the context block travels up unchanged.
func contextualize(a Action, data ActionData, err error) error {
	if !data.Config().VerboseErrors || isContextualized(err) {
		return err
	}

	var history []string
	if log, logErr := ObserverFor[*ActionsLog](data); logErr == nil {
		history = log.Entries()
	}
	dump := make(map[string]string, len(data.entries))
	for _, e := range data.entries {
		dump[e.Sig.String()] = fmt.Sprintf("%v", e.Value)
	}
	historyJSON, _ := json.MarshalIndent(history, "", "  ")
	dumpJSON, _ := json.MarshalIndent(dump, "", "  ")

	return &ActionError{
		ActionName: a.Name(),
		Context: fmt.Sprintf("Actions history: %s\nActions data: %s\n%s params: %+v",
			historyJSON, dumpJSON, a.Name(), a),
		Err: err,
	}
}

// ActionSet runs a list of actions in order, threading the snapshot
// through. The sequence stops early the moment a step's output carries the
// short-circuit flag.
type ActionSet struct {
	base
	system
	actions []Action
}

// Chain builds an ordered sequence of actions.
func Chain(actions ...Action) *ActionSet {
	return NamedChain("ActionSet", actions...)
}

// NamedChain is Chain with an explicit name, useful to title a group of
// actions in logs and diagnostics.
func NamedChain(name string, actions ...Action) *ActionSet {
	return &ActionSet{base: base{name: name}, actions: actions}
}

// Then appends the next action to the sequence.
func (s *ActionSet) Then(next Action) *ActionSet {
	return &ActionSet{base: s.base, actions: append(append([]Action(nil), s.actions...), next)}
}

// Finish appends a Return, short-circuiting everything chained after this set.
func (s *ActionSet) Finish() Action {
	return NewReturn(s)
}

func (s *ActionSet) Run(data ActionData) (ActionData, error) {
	var err error
	for _, a := range s.actions {
		if data.Skipped() {
			return data, nil
		}
		data, err = Execute(a, data)
		if err != nil {
			return data, err
		}
	}
	return data, nil
}

func (s *ActionSet) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	var err error
	for _, a := range s.actions {
		if data.Skipped() {
			return data, nil
		}
		data, err = ExecuteAsync(ctx, a, data)
		if err != nil {
			return data, err
		}
	}
	return data, nil
}

// Scope acquires a scoped resource and returns its release func. Used by
// atomic sets to hold a resource (transaction, lock, connection) across a
// whole sequence.
type Scope func() (release func() error, err error)

// AsyncScope is Scope for resources acquired and released under a context.
type AsyncScope func(ctx context.Context) (release func(context.Context) error, err error)

// AtomicActionSet runs a sequence inside a caller-supplied scope: the
// resource is acquired before the first action and released after the last
// one or on error.
type AtomicActionSet struct {
	*ActionSet
	scope Scope
}

func NewAtomicActionSet(scope Scope, actions ...Action) *AtomicActionSet {
	return &AtomicActionSet{
		ActionSet: NamedChain("AtomicActionSet", actions...),
		scope:     scope,
	}
}

func (s *AtomicActionSet) Run(data ActionData) (out ActionData, err error) {
	release, err := s.scope()
	if err != nil {
		return data, fmt.Errorf("acquiring scope for %s: %w", s.Name(), err)
	}
	defer func() {
		if relErr := release(); relErr != nil {
			err = errors.Join(err, fmt.Errorf("releasing scope for %s: %w", s.Name(), relErr))
		}
	}()
	return s.ActionSet.Run(data)
}

func (s *AtomicActionSet) RunAsync(ctx context.Context, data ActionData) (out ActionData, err error) {
	release, err := s.scope()
	if err != nil {
		return data, fmt.Errorf("acquiring scope for %s: %w", s.Name(), err)
	}
	defer func() {
		if relErr := release(); relErr != nil {
			err = errors.Join(err, fmt.Errorf("releasing scope for %s: %w", s.Name(), relErr))
		}
	}()
	return s.ActionSet.RunAsync(ctx, data)
}

// AsyncAtomicActionSet is AtomicActionSet for context-aware scopes. It has
// no synchronous form.
type AsyncAtomicActionSet struct {
	*ActionSet
	scope AsyncScope
}

func NewAsyncAtomicActionSet(scope AsyncScope, actions ...Action) *AsyncAtomicActionSet {
	return &AsyncAtomicActionSet{
		ActionSet: NamedChain("AsyncAtomicActionSet", actions...),
		scope:     scope,
	}
}

func (s *AsyncAtomicActionSet) Run(data ActionData) (ActionData, error) {
	return data, fmt.Errorf("%w: %s", ErrAsyncOnly, s.Name())
}

func (s *AsyncAtomicActionSet) RunAsync(ctx context.Context, data ActionData) (out ActionData, err error) {
	release, err := s.scope(ctx)
	if err != nil {
		return data, fmt.Errorf("acquiring scope for %s: %w", s.Name(), err)
	}
	defer func() {
		if relErr := release(ctx); relErr != nil {
			err = errors.Join(err, fmt.Errorf("releasing scope for %s: %w", s.Name(), relErr))
		}
	}()
	return s.ActionSet.RunAsync(ctx, data)
}

// CatchAll matches every error.
func CatchAll(error) bool { return true }

// CatchIs matches errors wrapping any of the given targets.
func CatchIs(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}

// HandledExceptions is the try/except wrapper for action sequences. When a
// nested action fails with a matching error, the handler is invoked with
// the error and the pre-error snapshot; it may return a replacement error
// to propagate. With FailOnError disabled, matching errors are swallowed
// and the pre-error snapshot is returned unchanged.
type HandledExceptions struct {
	base
	system
	set         *ActionSet
	catch       func(error) bool
	handle      func(error, ActionData) error
	failOnError bool
}

func NewHandledExceptions(
	catch func(error) bool,
	handle func(error, ActionData) error,
	failOnError bool,
	actions ...Action,
) *HandledExceptions {
	return &HandledExceptions{
		base:        base{name: "HandledExceptions"},
		set:         NamedChain("HandledExceptions.actions", actions...),
		catch:       catch,
		handle:      handle,
		failOnError: failOnError,
	}
}

func (h *HandledExceptions) Run(data ActionData) (ActionData, error) {
	out, err := h.set.Run(data)
	return h.resolve(data, out, err)
}

func (h *HandledExceptions) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	out, err := h.set.RunAsync(ctx, data)
	return h.resolve(data, out, err)
}

func (h *HandledExceptions) resolve(before, after ActionData, err error) (ActionData, error) {
	if err == nil {
		return after, nil
	}
	if !h.catch(err) {
		return before, err
	}
	var replacement error
	if h.handle != nil {
		replacement = h.handle(err, before)
	}
	if !h.failOnError {
		return before, nil
	}
	if replacement != nil {
		return before, replacement
	}
	return before, err
}

// OnSubfield runs the wrapped action against a nested slice of the
// registry: the value under FieldKey (a keyed map, possibly reached through
// a dotted path) becomes the child registry's data, and the child's keyed
// data is merged back under the same path afterwards.
type OnSubfield struct {
	base
	system
	action   Action
	fieldKey string
}

func NewOnSubfield(a Action, fieldKey string) *OnSubfield {
	return &OnSubfield{
		base:     base{name: fmt.Sprintf("OnSubfield[%s(%s)]", a.Name(), fieldKey)},
		action:   a,
		fieldKey: fieldKey,
	}
}

func (o *OnSubfield) Run(data ActionData) (ActionData, error) {
	child, err := o.childData(data)
	if err != nil {
		return data, err
	}
	out, err := Execute(o.action, child)
	if err != nil {
		return data, err
	}
	return o.mergeBack(data, out)
}

func (o *OnSubfield) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	child, err := o.childData(data)
	if err != nil {
		return data, err
	}
	out, err := ExecuteAsync(ctx, o.action, child)
	if err != nil {
		return data, err
	}
	return o.mergeBack(data, out)
}

func (o *OnSubfield) childData(data ActionData) (ActionData, error) {
	v, err := data.Get(o.fieldKey)
	if err != nil {
		return ActionData{}, err
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return ActionData{}, fmt.Errorf("%w: field %q of %s must hold a keyed map, got %T",
			ErrNotProperlyConfigured, o.fieldKey, o.Name(), v)
	}
	return data.WithNewData(sub), nil
}

func (o *OnSubfield) mergeBack(parent, child ActionData) (ActionData, error) {
	wrapped := gabs.New()
	if _, err := wrapped.SetP(child.AsMap(), o.fieldKey); err != nil {
		return parent, fmt.Errorf("merging subfield %q back: %w", o.fieldKey, err)
	}
	top, ok := wrapped.Data().(map[string]any)
	if !ok {
		return parent, fmt.Errorf("merging subfield %q back: unexpected shape %T", o.fieldKey, wrapped.Data())
	}
	return parent.Evolve(top), nil
}

// Return marks the snapshot as "should not be processed", imitating a
// return statement inside a chain. The optionally wrapped action runs first.
type Return struct {
	base
	action Action
}

func NewReturn(a Action) *Return {
	return &Return{base: base{name: "Return"}, action: a}
}

func (r *Return) Run(data ActionData) (ActionData, error) {
	if r.action != nil {
		out, err := Execute(r.action, data)
		if err != nil {
			return data, err
		}
		data = out
	}
	return data.WithSkip(), nil
}

func (r *Return) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	if r.action != nil {
		out, err := ExecuteAsync(ctx, r.action, data)
		if err != nil {
			return data, err
		}
		data = out
	}
	return data.WithSkip(), nil
}

// Named wraps an action under a made-up title, grouping it in logs and
// diagnostics without changing behavior.
type Named struct {
	base
	system
	action Action
}

func NewNamed(name string, a Action) *Named {
	return &Named{base: base{name: name}, action: a}
}

func (n *Named) Run(data ActionData) (ActionData, error) {
	return Execute(n.action, data)
}

func (n *Named) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	return ExecuteAsync(ctx, n.action, data)
}

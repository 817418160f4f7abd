package dsl

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/cascadeflow/cascade/actions"
	"github.com/cascadeflow/cascade/flow"
)

// Builder compiles one step into an action. Builders of composite kinds use
// the registry to compile their nested steps.
type Builder func(reg *Registry, step Step) (flow.Action, error)

// Registry maps step kinds to their builders.
type Registry struct {
	builders map[string]Builder
	client   *resty.Client
}

// NewRegistry builds a registry with the built-in kinds (assign, http, log,
// delay, uuid, switch, loop, return) pre-registered. The client backs every
// http step.
func NewRegistry(client *resty.Client) *Registry {
	r := &Registry{builders: map[string]Builder{}, client: client}
	r.builders["assign"] = buildAssign
	r.builders["http"] = buildHTTP
	r.builders["log"] = buildLog
	r.builders["delay"] = buildDelay
	r.builders["uuid"] = buildUUID
	r.builders["switch"] = buildSwitch
	r.builders["loop"] = buildLoop
	r.builders["return"] = buildReturn
	return r
}

// Register adds a custom kind, rejecting duplicates.
func (r *Registry) Register(kind string, b Builder) error {
	if _, ok := r.builders[kind]; ok {
		return fmt.Errorf("%w: step kind %q", flow.ErrAlreadyRegistered, kind)
	}
	r.builders[kind] = b
	return nil
}

// Compile turns a loaded pipeline into a single runnable action.
func (r *Registry) Compile(p Pipeline) (flow.Action, error) {
	steps, err := r.compileSteps(p.Steps)
	if err != nil {
		return nil, err
	}
	return flow.NamedChain(p.Name, steps...), nil
}

func (r *Registry) compileSteps(steps []Step) ([]flow.Action, error) {
	out := make([]flow.Action, len(steps))
	for i, s := range steps {
		a, err := r.compileStep(s)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

func (r *Registry) compileStep(s Step) (flow.Action, error) {
	build, ok := r.builders[s.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown step kind %q in step %q",
			flow.ErrNotProperlyConfigured, s.Kind, s.ID)
	}
	action, err := build(r, s)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", s.ID, err)
	}
	if s.Retry != nil {
		action = flow.NewRetry(action, flow.RetryPolicy{
			MaxAttempts: s.Retry.MaxAttempts,
			Delay:       s.Retry.Delay,
		}).While(flow.CatchAll)
	}
	if s.Condition != "" {
		action = actions.ExprCondition(s.Condition).IfThen(action)
	}
	return flow.NewNamed(s.ID, action), nil
}

// decodeArgs maps a step's raw args onto a typed struct.
func decodeArgs(step Step, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     target,
		TagName:    "yaml",
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(step.Args); err != nil {
		return fmt.Errorf("%w: args of %q: %v", flow.ErrNotProperlyConfigured, step.ID, err)
	}
	return nil
}

// --- Built-in kinds

// assign evaluates each value as an expression and stores it under the key.
// Keys compile in sorted order, so an expression may reference a sibling key
// only when that key sorts before its own.
func buildAssign(_ *Registry, step Step) (flow.Action, error) {
	if len(step.Args) == 0 {
		return nil, fmt.Errorf("%w: assign step needs at least one value", flow.ErrNotProperlyConfigured)
	}
	keys := make([]string, 0, len(step.Args))
	for key := range step.Args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	transforms := make([]flow.Action, 0, len(keys))
	for _, key := range keys {
		expression, ok := step.Args[key].(string)
		if !ok {
			return nil, fmt.Errorf("%w: assign value for %q must be an expression string, got %T",
				flow.ErrNotProperlyConfigured, key, step.Args[key])
		}
		transforms = append(transforms, actions.ExprTransform(key, expression))
	}
	return flow.NamedChain("assign", transforms...), nil
}

func buildHTTP(reg *Registry, step Step) (flow.Action, error) {
	var req actions.Request
	if err := decodeArgs(step, &req); err != nil {
		return nil, err
	}
	return actions.HTTPRequest(reg.client, req), nil
}

func buildLog(_ *Registry, step Step) (flow.Action, error) {
	var args struct {
		Level   string   `yaml:"level"`
		Message string   `yaml:"message"`
		Keys    []string `yaml:"keys"`
	}
	if err := decodeArgs(step, &args); err != nil {
		return nil, err
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(defaultString(args.Level, "INFO"))); err != nil {
		return nil, fmt.Errorf("%w: log level %q", flow.ErrNotProperlyConfigured, args.Level)
	}
	return actions.Log(level, args.Message, args.Keys...), nil
}

func buildDelay(_ *Registry, step Step) (flow.Action, error) {
	var args struct {
		Duration time.Duration `yaml:"duration"`
	}
	if err := decodeArgs(step, &args); err != nil {
		return nil, err
	}
	if args.Duration <= 0 {
		return nil, fmt.Errorf("%w: delay needs a positive duration", flow.ErrNotProperlyConfigured)
	}
	return actions.Delay(args.Duration), nil
}

func buildUUID(_ *Registry, step Step) (flow.Action, error) {
	var args struct {
		Key string `yaml:"key"`
	}
	if err := decodeArgs(step, &args); err != nil {
		return nil, err
	}
	if args.Key == "" {
		return nil, fmt.Errorf("%w: uuid needs a target key", flow.ErrNotProperlyConfigured)
	}
	return actions.NewID(args.Key), nil
}

func buildSwitch(reg *Registry, step Step) (flow.Action, error) {
	var args struct {
		Cases []struct {
			When  string `yaml:"when"`
			Steps []Step `yaml:"steps"`
		} `yaml:"cases"`
		Otherwise []Step `yaml:"otherwise"`
	}
	if err := decodeArgs(step, &args); err != nil {
		return nil, err
	}
	if len(args.Cases) == 0 {
		return nil, fmt.Errorf("%w: switch needs at least one case", flow.ErrNotProperlyConfigured)
	}
	sw := flow.NewSwitch()
	for _, c := range args.Cases {
		branch, err := reg.compileSteps(c.Steps)
		if err != nil {
			return nil, err
		}
		sw = sw.Case(actions.ExprCondition(c.When), branch...)
	}
	if args.Otherwise != nil {
		branch, err := reg.compileSteps(args.Otherwise)
		if err != nil {
			return nil, err
		}
		sw = sw.Otherwise(flow.NamedChain("otherwise", branch...))
	}
	return sw, nil
}

func buildLoop(reg *Registry, step Step) (flow.Action, error) {
	var args struct {
		Over        string            `yaml:"over"`
		As          string            `yaml:"as"`
		Aggregate   map[string]string `yaml:"aggregate"`
		SideEffects bool              `yaml:"side_effects"`
		Steps       []Step            `yaml:"steps"`
	}
	if err := decodeArgs(step, &args); err != nil {
		return nil, err
	}
	if args.Over == "" || args.As == "" {
		return nil, fmt.Errorf("%w: loop needs over and as", flow.ErrNotProperlyConfigured)
	}
	// The body lives at the step level; args.steps is accepted as well.
	nested := step.Steps
	if len(nested) == 0 {
		nested = args.Steps
	}
	if len(nested) == 0 {
		return nil, fmt.Errorf("%w: loop has no body steps", flow.ErrNotProperlyConfigured)
	}
	body, err := reg.compileSteps(nested)
	if err != nil {
		return nil, err
	}
	if args.SideEffects {
		return flow.NewForSideEffects(step.ID, flow.KeySource{Key: args.Over}, args.As, body...), nil
	}
	loop := flow.NewFor(step.ID, flow.KeySource{Key: args.Over}, args.As).Do(body...)
	for field, target := range args.Aggregate {
		loop = loop.Aggregating(field, target)
	}
	return loop, nil
}

func buildReturn(_ *Registry, _ Step) (flow.Action, error) {
	return flow.NewReturn(nil), nil
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

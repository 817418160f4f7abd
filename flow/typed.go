package flow

import (
	"context"
	"fmt"
	"reflect"
)

// Worker is a unit of business logic with an explicit contract: the keys it
// reads and the signature it writes. Workers never see the container; the
// framework gathers their inputs and registers their output.
type Worker interface {
	// InputKeys names the container keys passed to Call, in order.
	InputKeys() []string
	// Output describes the entry registered with Call's result.
	Output() Signature
	Call(args Values) (any, error)
}

// AsyncWorker is an optional extension for workers with a dedicated
// asynchronous body. Workers without it run their synchronous body under
// TypedAction.RunAsync as well.
type AsyncWorker interface {
	Worker
	CallAsync(ctx context.Context, args Values) (any, error)
}

// FuncWorker builds a Worker from a function and its declared contract.
type FuncWorker struct {
	Keys []string
	Out  Signature
	Fn   func(args Values) (any, error)
}

func (w FuncWorker) InputKeys() []string { return w.Keys }
func (w FuncWorker) Output() Signature   { return w.Out }
func (w FuncWorker) Call(args Values) (any, error) {
	return w.Fn(args)
}

// TypedAction adapts a Worker into an Action. Missing input keys fail
// before the worker runs; with StrictSignatureInference enabled the
// result's dynamic type is checked against the declared output signature.
type TypedAction struct {
	base
	worker Worker
}

func NewTypedAction(name string, worker Worker) *TypedAction {
	return &TypedAction{base: base{name: name}, worker: worker}
}

func (t *TypedAction) Worker() Worker { return t.worker }

func (t *TypedAction) Run(data ActionData) (ActionData, error) {
	args, err := t.gather(data)
	if err != nil {
		return data, err
	}
	result, err := t.worker.Call(args)
	if err != nil {
		return data, err
	}
	return t.deliver(data, result)
}

func (t *TypedAction) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	async, ok := t.worker.(AsyncWorker)
	if !ok {
		return t.Run(data)
	}
	args, err := t.gather(data)
	if err != nil {
		return data, err
	}
	result, err := async.CallAsync(ctx, args)
	if err != nil {
		return data, err
	}
	return t.deliver(data, result)
}

func (t *TypedAction) gather(data ActionData) (Values, error) {
	args := make(Values, len(t.worker.InputKeys()))
	for _, key := range t.worker.InputKeys() {
		value, err := data.Get(key)
		if err != nil {
			return nil, fmt.Errorf("input of %s: %w", t.name, err)
		}
		args[key] = value
	}
	return args, nil
}

func (t *TypedAction) deliver(data ActionData, result any) (ActionData, error) {
	out := t.worker.Output()
	if out.Key == "" && out.Type == nil && len(out.Tags) == 0 {
		return data, fmt.Errorf("%w: worker of %s declares an empty output signature",
			ErrNotProperlyConfigured, t.name)
	}
	if data.Config().StrictSignatureInference && out.Type != nil && result != nil {
		if got := reflect.TypeOf(result); !isSubtype(got, out.Type) {
			return data, fmt.Errorf("%w: %s produced %s, declared %s",
				ErrNotProperlyConfigured, t.name, got, out.Type)
		}
	}
	return data.register(out, result), nil
}

// --- Retry sugar

// RetryUntilTrue reruns the action until the boolean under key is true.
func (t *TypedAction) RetryUntilTrue(key string, policy RetryPolicy) *Retry {
	return WaitUntilTrue(t, key, policy)
}

// RetryUntilEquals reruns the action until the value under key equals want.
func (t *TypedAction) RetryUntilEquals(key string, want any, policy RetryPolicy) *Retry {
	return WaitUntilEquals(t, key, want, policy)
}

// RetryUntilContains reruns the action until the string under key contains
// the substring.
func (t *TypedAction) RetryUntilContains(key, substring string, policy RetryPolicy) *Retry {
	return WaitUntilContains(t, key, substring, policy)
}

// RetryUntilNotFails reruns the action while it fails with one of the
// target errors.
func (t *TypedAction) RetryUntilNotFails(policy RetryPolicy, targets ...error) *Retry {
	return WaitUntilNotFail(t, policy, targets...)
}

// NewTypedCondition builds a condition from a predicate over declared input
// keys; a missing key fails the validation with a search error instead of
// invoking the predicate.
func NewTypedCondition(name, failMessage string, keys []string, predicate func(args Values) (bool, error)) *Condition {
	return NewCondition(name, failMessage, func(data ActionData) (bool, error) {
		args := make(Values, len(keys))
		for _, key := range keys {
			value, err := data.Get(key)
			if err != nil {
				return false, fmt.Errorf("input of %s: %w", name, err)
			}
			args[key] = value
		}
		return predicate(args)
	})
}

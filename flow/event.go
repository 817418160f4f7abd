package flow

import (
	"context"
	"fmt"
)

// Event is a side-effect action: it fires a notification, writes a log
// line, pokes an external system, and always returns the container it was
// given. Under RunAsync a non-blocking event is launched as a future
// attached to the container instead of being awaited in place.
type Event struct {
	base
	blocking        bool
	sideEffect      func(data ActionData) error
	sideEffectAsync func(ctx context.Context, data ActionData) error
}

func NewEvent(name string, sideEffect func(data ActionData) error) *Event {
	return &Event{base: base{name: name}, blocking: true, sideEffect: sideEffect}
}

// WithSideEffectAsync sets a dedicated asynchronous body. Without one,
// RunAsync falls back to the synchronous body.
func (e *Event) WithSideEffectAsync(fn func(ctx context.Context, data ActionData) error) *Event {
	out := *e
	out.sideEffectAsync = fn
	return &out
}

// NonBlocking makes RunAsync fire the side effect in the background and
// return immediately; the spawned future is attached to the container and
// settles with WaitFutures. Run always blocks regardless.
func (e *Event) NonBlocking() *Event {
	out := *e
	out.blocking = false
	return &out
}

func (e *Event) Run(data ActionData) (ActionData, error) {
	if e.sideEffect == nil && e.sideEffectAsync == nil {
		return data, fmt.Errorf("%w: event %s has no side effect", ErrNotProperlyInherited, e.name)
	}
	if e.sideEffect == nil {
		return data, e.sideEffectAsync(context.Background(), data)
	}
	return data, e.sideEffect(data)
}

func (e *Event) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	fire := e.sideEffectAsync
	if fire == nil {
		if e.sideEffect == nil {
			return data, fmt.Errorf("%w: event %s has no side effect", ErrNotProperlyInherited, e.name)
		}
		fire = func(_ context.Context, d ActionData) error { return e.sideEffect(d) }
	}
	if e.blocking {
		return data, fire(ctx, data)
	}
	// A spawned side effect runs to completion even after the spawning
	// pipeline's context is cancelled; callers settle it via WaitFutures.
	detached := context.WithoutCancel(ctx)
	return data.WithFuture(Go(e.name, func() error {
		return fire(detached, data)
	})), nil
}

// EventSet runs a chain of actions for their side effects only; the data
// changes made inside the set are discarded.
type EventSet struct {
	base
	system
	set *ActionSet
}

func NewEventSet(name string, actions ...Action) *EventSet {
	return &EventSet{base: base{name: name}, set: NamedChain(name, actions...)}
}

func (e *EventSet) Run(data ActionData) (ActionData, error) {
	if _, err := e.set.Run(data); err != nil {
		return data, err
	}
	return data, nil
}

func (e *EventSet) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	if _, err := e.set.RunAsync(ctx, data); err != nil {
		return data, err
	}
	return data, nil
}

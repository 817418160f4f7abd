package flow

import (
	"context"
	"fmt"
)

// Source produces the elements a loop iterates over. Implementations pull
// elements lazily so a loop can range over channels and generator functions
// as well as plain slices.
type Source interface {
	Iterate(data ActionData) (Iterator, error)
}

// Iterator yields loop elements one at a time. Next returns ok=false once
// the source is exhausted.
type Iterator interface {
	Next(ctx context.Context) (element any, ok bool, err error)
}

// asyncOnlySource marks sources that cannot be drained synchronously.
type asyncOnlySource interface {
	asyncOnly()
}

// --- Slice-backed sources

type sliceIterator struct {
	elements []any
	pos      int
}

func (it *sliceIterator) Next(context.Context) (any, bool, error) {
	if it.pos >= len(it.elements) {
		return nil, false, nil
	}
	el := it.elements[it.pos]
	it.pos++
	return el, true, nil
}

// SliceSource iterates over a fixed slice known at build time.
type SliceSource struct {
	Elements []any
}

func (s SliceSource) Iterate(ActionData) (Iterator, error) {
	return &sliceIterator{elements: s.Elements}, nil
}

// KeySource iterates over a slice or array stored in the data container
// under a key.
type KeySource struct {
	Key string
}

func (s KeySource) Iterate(data ActionData) (Iterator, error) {
	value, err := data.Get(s.Key)
	if err != nil {
		return nil, err
	}
	elements, err := elementsOf(value)
	if err != nil {
		return nil, fmt.Errorf("loop source %q: %w", s.Key, err)
	}
	return &sliceIterator{elements: elements}, nil
}

// FuncSource computes the elements from the data container at loop start.
type FuncSource struct {
	Provide func(data ActionData) ([]any, error)
}

func (s FuncSource) Iterate(data ActionData) (Iterator, error) {
	elements, err := s.Provide(data)
	if err != nil {
		return nil, err
	}
	return &sliceIterator{elements: elements}, nil
}

// ChanSource iterates over a channel and is only usable from RunAsync, since
// draining a channel may block indefinitely.
type ChanSource struct {
	Ch <-chan any
}

func (ChanSource) asyncOnly() {}

func (s ChanSource) Iterate(ActionData) (Iterator, error) {
	return &chanIterator{ch: s.Ch}, nil
}

type chanIterator struct {
	ch <-chan any
}

func (it *chanIterator) Next(ctx context.Context) (any, bool, error) {
	select {
	case el, open := <-it.ch:
		if !open {
			return nil, false, nil
		}
		return el, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// --- For

// For runs a body of actions once per source element, binding the current
// element under AsKey for each iteration, and collects the per-iteration
// values of the aggregated fields into slices registered on the result.
//
//	loop := flow.NewFor("enrich-users", flow.KeySource{Key: "users"}, "user").
//		Aggregating("email", "emails").
//		Do(fetchProfile, extractEmail)
type For struct {
	base
	system
	source     Source
	asKey      string
	body       *ActionSet
	aggregated []aggregatedField
	skipNil    bool
}

type aggregatedField struct {
	key    string
	target string
}

func NewFor(name string, source Source, asKey string) *For {
	return &For{base: base{name: name}, source: source, asKey: asKey}
}

// Aggregating collects the value stored under key after each iteration into
// a slice registered under target on the loop result. Target may equal key.
func (f *For) Aggregating(key, target string) *For {
	out := *f
	out.aggregated = append(append([]aggregatedField(nil), f.aggregated...), aggregatedField{key: key, target: target})
	return &out
}

// SkipNil makes the loop pass over nil source elements instead of binding
// them.
func (f *For) SkipNil() *For {
	out := *f
	out.skipNil = true
	return &out
}

// Do attaches the loop body.
func (f *For) Do(actions ...Action) *For {
	out := *f
	out.body = NamedChain(f.name+".body", actions...)
	return &out
}

func (f *For) Run(data ActionData) (ActionData, error) {
	if _, ok := f.source.(asyncOnlySource); ok {
		return data, fmt.Errorf("%w: loop %s drains a blocking source", ErrAsyncOnly, f.name)
	}
	return f.run(context.Background(), data, Execute)
}

func (f *For) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	return f.run(ctx, data, func(a Action, d ActionData) (ActionData, error) {
		return ExecuteAsync(ctx, a, d)
	})
}

func (f *For) run(ctx context.Context, data ActionData, exec func(Action, ActionData) (ActionData, error)) (ActionData, error) {
	if f.body == nil {
		return data, fmt.Errorf("%w: loop %s has no body, call Do first", ErrNotProperlyConfigured, f.name)
	}
	it, err := f.source.Iterate(data)
	if err != nil {
		return data, err
	}
	collected := make([][]any, len(f.aggregated))
	for i := range collected {
		collected[i] = []any{}
	}
	for {
		element, ok, err := it.Next(ctx)
		if err != nil {
			return data, err
		}
		if !ok {
			break
		}
		if element == nil && f.skipNil {
			continue
		}
		iteration, err := exec(f.body, data.Evolve(Values{f.asKey: element}))
		if err != nil {
			return data, err
		}
		for i, field := range f.aggregated {
			value, err := iteration.Get(field.key)
			if err != nil {
				return data, fmt.Errorf("aggregated field of loop %s: %w", f.name, err)
			}
			collected[i] = append(collected[i], value)
		}
	}
	result := data
	for i, field := range f.aggregated {
		result = result.Evolve(Values{field.target: collected[i]})
	}
	return result, nil
}

// ForSideEffects runs a body per element purely for its side effects; all
// per-iteration data changes are discarded and the original container is
// returned.
type ForSideEffects struct {
	base
	system
	loop *For
}

func NewForSideEffects(name string, source Source, asKey string, actions ...Action) *ForSideEffects {
	return &ForSideEffects{
		base: base{name: name},
		loop: NewFor(name, source, asKey).Do(actions...),
	}
}

func (f *ForSideEffects) Run(data ActionData) (ActionData, error) {
	if _, err := f.loop.Run(data); err != nil {
		return data, err
	}
	return data, nil
}

func (f *ForSideEffects) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	if _, err := f.loop.RunAsync(ctx, data); err != nil {
		return data, err
	}
	return data, nil
}

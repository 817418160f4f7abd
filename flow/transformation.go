package flow

import (
	"context"
	"fmt"
)

// Transformation reshapes the container: it derives new entries from
// existing ones without side effects outside the container.
type Transformation struct {
	base
	apply      func(data ActionData) (ActionData, error)
	applyAsync func(ctx context.Context, data ActionData) (ActionData, error)
}

func NewTransformation(name string, apply func(data ActionData) (ActionData, error)) *Transformation {
	return &Transformation{base: base{name: name}, apply: apply}
}

// WithApplyAsync sets a dedicated asynchronous body. Without one, RunAsync
// falls back to the synchronous body.
func (t *Transformation) WithApplyAsync(apply func(ctx context.Context, data ActionData) (ActionData, error)) *Transformation {
	out := *t
	out.applyAsync = apply
	return &out
}

func (t *Transformation) Run(data ActionData) (ActionData, error) {
	if t.apply == nil {
		return data, fmt.Errorf("%w: transformation %s has no body", ErrNotProperlyInherited, t.name)
	}
	return t.apply(data)
}

func (t *Transformation) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	if t.applyAsync != nil {
		return t.applyAsync(ctx, data)
	}
	return t.Run(data)
}

// RenameActionField re-registers the value found under from with the key
// to, keeping the rest of its signature, and removes the old entry.
func RenameActionField(from, to string) *Transformation {
	return NewTransformation("RenameActionField["+from+"->"+to+"]",
		func(data ActionData) (ActionData, error) {
			query := KeySignature(from)
			entry, err := data.ensureOne(data.FindWithSignature(query), query)
			if err != nil {
				return data, err
			}
			data, err = data.Remove(entry.Sig)
			if err != nil {
				return data, err
			}
			return data.Register(entry.Sig.WithKey(to), entry.Value)
		})
}

// WithoutFields drops every entry matching any of the given keys. Missing
// keys are ignored.
func WithoutFields(keys ...string) *Transformation {
	return NewTransformation(fmt.Sprintf("WithoutFields%v", keys),
		func(data ActionData) (ActionData, error) {
			for _, key := range keys {
				data = data.Discard(KeySignature(key))
			}
			return data, nil
		})
}

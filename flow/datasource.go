package flow

import (
	"context"
	"fmt"
)

// DataSource fetches values into the container. It declares the signatures
// it provides and registers whatever its fetch function returns; with
// SkipIfPresent the fetch is bypassed when every provided signature is
// already in the container.
type DataSource struct {
	base
	provides      []Signature
	skipIfPresent bool
	get           func(data ActionData) (Values, error)
	getAsync      func(ctx context.Context, data ActionData) (Values, error)
}

func NewDataSource(name string, provides ...Signature) *DataSource {
	return &DataSource{base: base{name: name}, provides: provides}
}

// Provides returns the signatures the source declares.
func (s *DataSource) Provides() []Signature {
	return append([]Signature(nil), s.provides...)
}

// SkipIfPresent makes the source a no-op when all provided signatures are
// already registered.
func (s *DataSource) SkipIfPresent() *DataSource {
	out := *s
	out.skipIfPresent = true
	return &out
}

// WithGet sets the synchronous fetch function.
func (s *DataSource) WithGet(get func(data ActionData) (Values, error)) *DataSource {
	out := *s
	out.get = get
	return &out
}

// WithGetAsync sets the asynchronous fetch function. Sources without one
// fall back to the synchronous function under RunAsync.
func (s *DataSource) WithGetAsync(get func(ctx context.Context, data ActionData) (Values, error)) *DataSource {
	out := *s
	out.getAsync = get
	return &out
}

func (s *DataSource) Run(data ActionData) (ActionData, error) {
	if s.get == nil {
		return data, fmt.Errorf("%w: data source %s has no fetch function", ErrNotProperlyInherited, s.name)
	}
	if s.provided(data) {
		return data, nil
	}
	values, err := s.get(data)
	if err != nil {
		return data, err
	}
	return s.register(data, values)
}

func (s *DataSource) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	if s.getAsync == nil {
		return s.Run(data)
	}
	if s.provided(data) {
		return data, nil
	}
	values, err := s.getAsync(ctx, data)
	if err != nil {
		return data, err
	}
	return s.register(data, values)
}

func (s *DataSource) provided(data ActionData) bool {
	if !s.skipIfPresent || len(s.provides) == 0 {
		return false
	}
	for _, sig := range s.provides {
		if len(data.Find(sig)) == 0 {
			return false
		}
	}
	return true
}

func (s *DataSource) register(data ActionData, values Values) (ActionData, error) {
	// Fetched keys that match a declared signature keep its full identity;
	// the rest are registered as plain keyed entries.
	for key, value := range values {
		sig := KeySignature(key)
		for _, declared := range s.provides {
			if declared.Key == key {
				sig = declared
				break
			}
		}
		data = data.register(sig, value)
	}
	return data, nil
}

// AddActionValue registers one static value under a key.
func AddActionValue(key string, value any) *DataSource {
	return AddActionValues(Values{key: value}).rename("AddActionValue[" + key + "]")
}

// AddActionValues registers a static batch of keyed values.
func AddActionValues(values Values) *DataSource {
	src := NewDataSource("AddActionValues")
	return src.WithGet(func(ActionData) (Values, error) {
		return values, nil
	})
}

// AddVirtualKeyShortcut registers an alias whose value is resolved from
// another, possibly dotted, key at the time the shortcut runs.
func AddVirtualKeyShortcut(alias, sourceKey string) *DataSource {
	src := NewDataSource("AddVirtualKeyShortcut["+alias+"]", KeySignature(alias))
	return src.WithGet(func(data ActionData) (Values, error) {
		value, err := data.Get(sourceKey)
		if err != nil {
			return nil, err
		}
		return Values{alias: value}, nil
	})
}

func (s *DataSource) rename(name string) *DataSource {
	out := *s
	out.base = base{name: name, description: s.description}
	return &out
}

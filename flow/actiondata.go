package flow

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/google/uuid"
)

// Values is the flat keyed form used to seed and evolve registries.
type Values = map[string]any

// Entry is one (signature, value) pair of a registry.
type Entry struct {
	Sig   Signature
	Value any
}

// ActionData is the immutable, signature-indexed container threaded through
// a pipeline. Every mutating operation returns a new snapshot sharing the
// unchanged parts; a snapshot is never modified after construction and must
// not be reused across concurrent pipeline runs.
type ActionData struct {
	entries      []Entry
	futures      []*Future
	observers    []Observer
	retryRecords []RetryRecord

	skip        bool
	cfg         Config
	execID      string
	initialized bool
}

// New builds a registry with explicit signature/value pairs and the given
// execution config. A fresh observer set and execution ID are attached.
func New(cfg Config, entries ...Entry) ActionData {
	return ActionData{
		entries:     append([]Entry(nil), entries...),
		observers:   defaultObservers(),
		cfg:         cfg,
		execID:      uuid.New().String(),
		initialized: true,
	}
}

// Create builds a registry from plain keyed values: each key becomes a
// signature carrying the key and the runtime type of its value.
func Create(data Values) ActionData {
	return CreateWith(Config{}, data)
}

// CreateWith is Create with an explicit execution config.
func CreateWith(cfg Config, data Values) ActionData {
	return New(cfg, keyedEntries(data)...)
}

func keyedEntries(data Values) []Entry {
	entries := make([]Entry, 0, len(data))
	for key, value := range data {
		entries = append(entries, Entry{Sig: TypedKey(key, value), Value: value})
	}
	return entries
}

// derive returns a copy of d; callers then adjust the copied fields. The
// entry slice is shared until replaced, so callers must never append to it
// in place.
func (d ActionData) derive() ActionData {
	return d
}

// Config returns the execution config this snapshot carries.
func (d ActionData) Config() Config { return d.cfg }

// ExecutionID identifies the pipeline invocation this snapshot belongs to.
func (d ActionData) ExecutionID() string { return d.execID }

// Skipped reports whether the short-circuit flag is set.
func (d ActionData) Skipped() bool { return d.skip }

// WithSkip returns a snapshot with the short-circuit flag set; every
// subsequent action passes it through unchanged.
func (d ActionData) WithSkip() ActionData {
	out := d.derive()
	out.skip = true
	return out
}

// Entries returns the registered pairs in insertion order.
func (d ActionData) Entries() []Entry {
	return append([]Entry(nil), d.entries...)
}

// Signatures lists the registered signatures in insertion order.
func (d ActionData) Signatures() []Signature {
	sigs := make([]Signature, len(d.entries))
	for i, e := range d.entries {
		sigs[i] = e.Sig
	}
	return sigs
}

// --- Lookup

// Get returns the value registered under key. Dotted paths fall back to
// nested traversal: "a.b.c" resolves "a" and walks the remainder through
// its value's maps and slices.
func (d ActionData) Get(key string) (any, error) {
	v, err := d.FindOne(KeySignature(key))
	if err == nil {
		return v, nil
	}
	if !strings.Contains(key, ".") {
		return nil, err
	}

	head, rest, _ := strings.Cut(key, ".")
	root, rootErr := d.FindOne(KeySignature(head))
	if rootErr != nil {
		return nil, err
	}
	nested := gabs.Wrap(root).Path(rest)
	if nested == nil {
		return nil, err
	}
	return nested.Data(), nil
}

// GetOr returns the value under key, or def when the key is absent.
func (d ActionData) GetOr(key string, def any) any {
	v, err := d.Get(key)
	if err != nil {
		return def
	}
	return v
}

// GetBySignature returns the value whose signature equals the query exactly.
func (d ActionData) GetBySignature(query Signature) (any, error) {
	_, v, err := d.GetWithSignature(query)
	return v, err
}

// GetWithSignature returns the exact-equal pair for the query.
func (d ActionData) GetWithSignature(query Signature) (Signature, any, error) {
	var matched []Entry
	for _, e := range d.entries {
		if e.Sig.Equal(query) {
			matched = append(matched, e)
		}
	}
	e, err := d.ensureOne(matched, query)
	if err != nil {
		return Signature{}, nil, err
	}
	return e.Sig, e.Value, nil
}

// GetByType returns the single value matching the given type.
func (d ActionData) GetByType(t reflect.Type) (any, error) {
	return d.FindOne(TypeSignature(t))
}

// GetAs returns the single value matching the type T, already asserted.
func GetAs[T any](d ActionData) (T, error) {
	var zero T
	v, err := d.GetByType(TypeOf[T]())
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: value registered as %s is %T", ErrNotProperlyConfigured, TypeOf[T](), v)
	}
	return out, nil
}

// GetByTags returns the single value matching all given tags.
func (d ActionData) GetByTags(tags ...string) (any, error) {
	return d.FindOne(TagSignature(tags...))
}

// Find returns the values of all pairs matching the query.
func (d ActionData) Find(query Signature) []any {
	entries := d.FindWithSignature(query)
	values := make([]any, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	return values
}

// FindWithSignature returns all pairs matching the query.
func (d ActionData) FindWithSignature(query Signature) []Entry {
	var matched []Entry
	for _, e := range d.entries {
		if e.Sig.Match(query) {
			matched = append(matched, e)
		}
	}
	return matched
}

// FindOne returns the single value matching the query, failing with
// ErrNothingFound or ErrFoundMoreThanOne otherwise.
func (d ActionData) FindOne(query Signature) (any, error) {
	e, err := d.ensureOne(d.FindWithSignature(query), query)
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

// FindOrDefault returns the single value matching a key query, or def.
func (d ActionData) FindOrDefault(key string, def any) any {
	v, err := d.FindOne(KeySignature(key))
	if err != nil {
		return def
	}
	return v
}

// Has reports whether a value is registered under the key (including
// dotted-path fallback).
func (d ActionData) Has(key string) bool {
	_, err := d.Get(key)
	return err == nil
}

// HasSignature reports whether an exact-equal signature is registered.
func (d ActionData) HasSignature(sig Signature) bool {
	_, err := d.GetBySignature(sig)
	return err == nil
}

// ensureOne collapses a match set: one entry wins, zero fails with
// ErrNothingFound, several fail with ErrFoundMoreThanOne unless all carry
// the same value, which counts as a duplicate rather than an ambiguity.
// Search failures list the registered signatures for diagnosis.
func (d ActionData) ensureOne(matched []Entry, query Signature) (Entry, error) {
	switch len(matched) {
	case 1:
		return matched[0], nil
	case 0:
		return Entry{}, fmt.Errorf("%w: failed to find %s, present signatures: %v",
			ErrNothingFound, query, d.Signatures())
	}
	first := matched[0]
	for _, e := range matched[1:] {
		if !reflect.DeepEqual(e.Value, first.Value) {
			return Entry{}, fmt.Errorf("%w: expected one match for %s but found %d, present signatures: %v",
				ErrFoundMoreThanOne, query, len(matched), d.Signatures())
		}
	}
	return first, nil
}

// --- Evolution

// Evolve adds keyed values, replacing any registered pair whose signature
// carries the same key. The replacing signature reuses the old signature's
// type and tags when one exists, otherwise it is typed from the new value.
// The whole update is one atomic copy.
func (d ActionData) Evolve(data Values) ActionData {
	keep := make([]Entry, 0, len(d.entries))
	replaced := make(map[string]Signature, len(data))
	for _, e := range d.entries {
		key := e.Sig.Key
		if key != "" {
			if _, has := data[key]; has {
				replaced[key] = e.Sig
				continue
			}
		}
		keep = append(keep, e)
	}
	for key, value := range data {
		sig, ok := replaced[key]
		if !ok {
			sig = TypedKey(key, value)
		}
		keep = append(keep, Entry{Sig: sig, Value: value})
	}
	out := d.derive()
	out.entries = keep
	return out
}

// Set is Evolve for a single pair.
func (d ActionData) Set(key string, value any) ActionData {
	return d.Evolve(Values{key: value})
}

// Register adds a value under the given signature, failing with
// ErrAlreadyRegistered when an exact-equal signature is present. A keyed
// signature first drops any registered pair with the same key.
func (d ActionData) Register(sig Signature, value any) (ActionData, error) {
	if d.HasSignature(sig) {
		return d, fmt.Errorf("%w: entity with signature %s", ErrAlreadyRegistered, sig)
	}
	return d.register(sig, value), nil
}

// register inserts without the duplicate check, preserving the
// keyed last-write-wins invariant.
func (d ActionData) register(sig Signature, value any) ActionData {
	instance := d
	if sig.Key != "" {
		instance = instance.Discard(KeySignature(sig.Key))
	}
	out := instance.derive()
	out.entries = append(append([]Entry(nil), instance.entries...), Entry{Sig: sig, Value: value})
	return out
}

// RegisterMany adds values for all given pairs, with duplicate checking.
func (d ActionData) RegisterMany(entries []Entry) (ActionData, error) {
	instance := d
	var err error
	for _, e := range entries {
		instance, err = instance.Register(e.Sig, e.Value)
		if err != nil {
			return d, err
		}
	}
	return instance, nil
}

// Remove drops the pair whose signature equals the query exactly, failing
// with ErrNothingFound when absent.
func (d ActionData) Remove(query Signature) (ActionData, error) {
	target, _, err := d.GetWithSignature(query)
	if err != nil {
		return d, err
	}
	return d.removeExact(target), nil
}

// RemoveMany drops the pairs equal to each query signature.
func (d ActionData) RemoveMany(queries []Signature) (ActionData, error) {
	instance := d
	var err error
	for _, q := range queries {
		instance, err = instance.Remove(q)
		if err != nil {
			return d, err
		}
	}
	return instance, nil
}

// Discard drops the first pair matching the query (non-exact), keeping the
// registry unchanged when nothing matches.
func (d ActionData) Discard(query Signature) ActionData {
	matched := d.FindWithSignature(query)
	if len(matched) == 0 {
		return d
	}
	return d.removeExact(matched[0].Sig)
}

// DiscardMany drops the first match of each query, ignoring misses.
func (d ActionData) DiscardMany(queries []Signature) ActionData {
	instance := d
	for _, q := range queries {
		instance = instance.Discard(q)
	}
	return instance
}

func (d ActionData) removeExact(target Signature) ActionData {
	keep := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		if !e.Sig.Equal(target) {
			keep = append(keep, e)
		}
	}
	out := d.derive()
	out.entries = keep
	return out
}

// WithNewData replaces the registered data with the given keyed values,
// preserving the execution metadata (observers, futures, config, skip flag).
func (d ActionData) WithNewData(data Values) ActionData {
	out := d.derive()
	out.entries = keyedEntries(data)
	return out
}

// WithFreshExecution strips all metadata from the previous execution: only
// the data survives, with a new observer set and execution ID.
func (d ActionData) WithFreshExecution() ActionData {
	out := New(d.cfg)
	out.entries = d.entries
	return out
}

// WithObserver attaches an additional observer for the rest of the
// execution.
func (d ActionData) WithObserver(o Observer) ActionData {
	out := d.derive()
	out.observers = append(append([]Observer(nil), d.observers...), o)
	return out
}

// --- Futures

// WithFuture appends a handle to a scheduled background task.
func (d ActionData) WithFuture(f *Future) ActionData {
	out := d.derive()
	out.futures = append(append([]*Future(nil), d.futures...), f)
	return out
}

// Futures returns the handles of all scheduled background tasks.
func (d ActionData) Futures() []*Future {
	return append([]*Future(nil), d.futures...)
}

// WaitFutures awaits every outstanding background task, returning the first
// task error encountered.
func (d ActionData) WaitFutures(ctx context.Context) error {
	for _, f := range d.futures {
		if err := f.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// --- Observation

// RecordStart fans the start hook out to every attached observer willing to
// record the action.
func (d ActionData) RecordStart(a Action) ActionData {
	for _, o := range d.observers {
		if o.ShouldRecord(a) {
			o.RecordStart(a)
		}
	}
	return d
}

// RecordEnd fans the end hook out to every attached observer willing to
// record the action.
func (d ActionData) RecordEnd(a Action) ActionData {
	for _, o := range d.observers {
		if o.ShouldRecord(a) {
			o.RecordEnd(a)
		}
	}
	return d
}

// --- Retry history

// RetryRecord pairs a retried action's name with its terminal RetryInfo.
type RetryRecord struct {
	ActionName string
	Info       RetryInfo
}

// withRetryRecord appends a terminal retry record; records accumulate
// across multiple retry-wrapped actions in one chain.
func (d ActionData) withRetryRecord(r RetryRecord) ActionData {
	out := d.derive()
	out.retryRecords = append(append([]RetryRecord(nil), d.retryRecords...), r)
	return out
}

// RetryRecords returns the retry history accumulated so far.
func (d ActionData) RetryRecords() []RetryRecord {
	return append([]RetryRecord(nil), d.retryRecords...)
}

// --- Export

// AsMap exports all keyed pairs; signatures without keys are excluded.
func (d ActionData) AsMap() Values {
	out := make(Values, len(d.entries))
	for _, e := range d.entries {
		if e.Sig.Key != "" {
			out[e.Sig.Key] = e.Value
		}
	}
	return out
}

func (d ActionData) String() string {
	var b strings.Builder
	b.WriteString("ActionData{")
	for i, e := range d.entries {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %v", e.Sig, e.Value)
	}
	b.WriteString("}")
	return b.String()
}

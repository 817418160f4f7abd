package flow

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Signature is the structural descriptor used to address values in an
// ActionData registry: an optional type, a tag set and an optional key.
// Signatures are value types and are never mutated; derived signatures are
// produced with the With* helpers.
type Signature struct {
	Type    reflect.Type
	Tags    []string
	Key     string
	Default any
}

// KeySignature builds a key-only signature, the most common query shape.
func KeySignature(key string) Signature {
	return Signature{Key: key}
}

// TypeSignature builds a type-only signature.
func TypeSignature(t reflect.Type) Signature {
	return Signature{Type: t}
}

// TagSignature builds a tags-only signature.
func TagSignature(tags ...string) Signature {
	return Signature{Tags: tags}
}

// TypedKey builds a signature with the key and the runtime type of value,
// the shape produced by Evolve and Create for plain keyed data.
func TypedKey(key string, value any) Signature {
	return Signature{Key: key, Type: reflect.TypeOf(value)}
}

// TypeOf returns the reflect.Type of T, usable for typed signatures of
// interface types as well as concrete ones.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// WithKey returns a copy of the signature addressing a different key.
func (s Signature) WithKey(key string) Signature {
	s.Key = key
	return s
}

// WithType returns a copy of the signature with a different type.
func (s Signature) WithType(t reflect.Type) Signature {
	s.Type = t
	return s
}

// WithTags returns a copy of the signature with the given tag set.
func (s Signature) WithTags(tags ...string) Signature {
	s.Tags = tags
	return s
}

// Match reports whether this signature satisfies the query. Matching is one
// directional: the query's unset fields match anything, its tags match by
// subset containment and its key by equality. Types match when the candidate
// type is the query type, implements it, or is assignable to it.
func (s Signature) Match(query Signature) bool {
	if query.Type != nil && s.Type != nil && !isSubtype(s.Type, query.Type) {
		return false
	}
	if len(query.Tags) > 0 && !containsAll(s.Tags, query.Tags) {
		return false
	}
	if query.Key != "" && query.Key != s.Key {
		return false
	}
	return true
}

// Equal reports full structural equality, the relation used by exact
// lookups, removal and duplicate detection.
func (s Signature) Equal(other Signature) bool {
	if s.Type != other.Type || s.Key != other.Key {
		return false
	}
	if len(s.Tags) != len(other.Tags) || !containsAll(s.Tags, other.Tags) {
		return false
	}
	return reflect.DeepEqual(s.Default, other.Default)
}

func (s Signature) String() string {
	parts := make([]string, 0, 3)
	if s.Key != "" {
		parts = append(parts, "key="+s.Key)
	}
	if s.Type != nil {
		parts = append(parts, "type="+s.Type.String())
	}
	if len(s.Tags) > 0 {
		tags := append([]string(nil), s.Tags...)
		sort.Strings(tags)
		parts = append(parts, "tags="+strings.Join(tags, ","))
	}
	if len(parts) == 0 {
		return "Signature{}"
	}
	return fmt.Sprintf("Signature{%s}", strings.Join(parts, " "))
}

// isSubtype reports whether candidate can stand in for query: identical
// types, an implementation of a query interface, or an assignable type.
func isSubtype(candidate, query reflect.Type) bool {
	if candidate == query {
		return true
	}
	if query.Kind() == reflect.Interface {
		return candidate.Implements(query)
	}
	return candidate.AssignableTo(query)
}

func containsAll(haystack, needles []string) bool {
	for _, n := range needles {
		found := false
		for _, h := range haystack {
			if h == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

package flow

import (
	"reflect"
	"testing"
)

func TestSignature_Match_Reflexive(t *testing.T) {
	sig := TypedKey("user", map[string]any{}).WithTags("db", "cached")

	if !sig.Match(sig) {
		t.Errorf("Match(self) = false; want true")
	}
}

func TestSignature_Match_TagsSubset(t *testing.T) {
	entry := KeySignature("user").WithTags("db", "cached", "external")

	cases := []struct {
		name  string
		query Signature
		want  bool
	}{
		{"empty tags", KeySignature("user"), true},
		{"one held tag", KeySignature("user").WithTags("db"), true},
		{"all held tags", KeySignature("user").WithTags("db", "cached", "external"), true},
		{"foreign tag", KeySignature("user").WithTags("db", "fresh"), false},
	}
	for _, tc := range cases {
		if got := entry.Match(tc.query); got != tc.want {
			t.Errorf("%s: Match = %v; want %v", tc.name, got, tc.want)
		}
	}
}

func TestSignature_Match_KeyMismatch(t *testing.T) {
	entry := KeySignature("user")

	if entry.Match(KeySignature("account")) {
		t.Errorf("Match with different key = true; want false")
	}
	if !entry.Match(Signature{}) {
		t.Errorf("Match with empty query = false; want true")
	}
}

func TestSignature_Match_Type(t *testing.T) {
	entry := TypeSignature(TypeOf[string]()).WithKey("name")

	if !entry.Match(TypeSignature(TypeOf[string]())) {
		t.Errorf("Match with same type = false; want true")
	}
	if entry.Match(TypeSignature(TypeOf[int]())) {
		t.Errorf("Match with different type = true; want false")
	}
}

func TestSignature_Match_Interface(t *testing.T) {
	entry := TypeSignature(reflect.TypeOf(&RetryError{}))

	if !entry.Match(TypeSignature(TypeOf[error]())) {
		t.Errorf("concrete entry should match an interface query it implements")
	}
}

func TestSignature_Equal(t *testing.T) {
	a := TypedKey("n", 1).WithTags("x")
	b := TypedKey("n", 2).WithTags("x")

	if !a.Equal(b) {
		t.Errorf("Equal = false for structurally identical signatures")
	}
	if a.Equal(b.WithTags("x", "y")) {
		t.Errorf("Equal = true for different tag sets")
	}
}

func TestTypedKey_CapturesRuntimeType(t *testing.T) {
	sig := TypedKey("count", 42)

	if sig.Key != "count" {
		t.Errorf("Key = %q; want count", sig.Key)
	}
	if sig.Type != reflect.TypeOf(42) {
		t.Errorf("Type = %v; want int", sig.Type)
	}
}

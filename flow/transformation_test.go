package flow

import (
	"errors"
	"reflect"
	"testing"
)

func TestTransformation_EvolvesRegistry(t *testing.T) {
	out, err := Execute(increment("counter"), Create(Values{"counter": 0}))
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if v, _ := out.Get("counter"); v != 1 {
		t.Errorf("counter = %v; want 1", v)
	}
}

func TestTransformation_NoBody(t *testing.T) {
	_, err := Execute(&Transformation{base: base{name: "Empty"}}, Create(nil))
	if !errors.Is(err, ErrNotProperlyInherited) {
		t.Errorf("Execute error = %v; want ErrNotProperlyInherited", err)
	}
}

func TestRenameActionField(t *testing.T) {
	d := New(Config{}, Entry{Sig: KeySignature("old").WithTags("db"), Value: 42})

	out, err := Execute(RenameActionField("old", "new"), d)
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if out.Has("old") {
		t.Errorf("old key still present")
	}
	v, err := out.Get("new")
	if err != nil || v != 42 {
		t.Errorf("new = %v, %v; want 42, nil", v, err)
	}
	sig := out.Entries()[0].Sig
	if len(sig.Tags) != 1 || sig.Tags[0] != "db" {
		t.Errorf("rename dropped the signature tags: %s", sig)
	}
}

func TestRenameActionField_TypedEntry(t *testing.T) {
	d := Create(Values{"amount": 12.5})

	out, err := Execute(RenameActionField("amount", "total"), d)
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if v, _ := out.Get("total"); v != 12.5 {
		t.Errorf("total = %v; want 12.5", v)
	}
	sig := out.Entries()[0].Sig
	if sig.Type == nil || sig.Type.Kind() != reflect.Float64 {
		t.Errorf("rename dropped the signature type: %s", sig)
	}
}

func TestRenameActionField_Missing(t *testing.T) {
	_, err := Execute(RenameActionField("old", "new"), Create(nil))
	if !errors.Is(err, ErrNothingFound) {
		t.Errorf("Execute error = %v; want ErrNothingFound", err)
	}
}

func TestWithoutFields(t *testing.T) {
	d := Create(Values{"keep": 1, "drop1": 2, "drop2": 3})

	out, err := Execute(WithoutFields("drop1", "drop2", "absent"), d)
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if !out.Has("keep") || out.Has("drop1") || out.Has("drop2") {
		t.Errorf("unexpected registry content: %v", out.AsMap())
	}
}

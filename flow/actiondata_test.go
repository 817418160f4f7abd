package flow

import (
	"errors"
	"reflect"
	"testing"
)

func TestActionData_CreateRoundTrip(t *testing.T) {
	in := Values{"name": "order-7", "count": 3, "open": true}

	out := Create(in).AsMap()

	if !reflect.DeepEqual(out, in) {
		t.Errorf("AsMap() = %v; want %v", out, in)
	}
}

func TestActionData_Get_Missing(t *testing.T) {
	d := Create(Values{"a": 1})

	_, err := d.Get("b")
	if !errors.Is(err, ErrNothingFound) {
		t.Errorf("Get(b) error = %v; want ErrNothingFound", err)
	}
	if !errors.Is(err, ErrSearch) {
		t.Errorf("Get(b) error = %v; want it to wrap ErrSearch", err)
	}
}

func TestActionData_Get_DottedPath(t *testing.T) {
	d := Create(Values{
		"order": map[string]any{
			"customer": map[string]any{"email": "a@b.c"},
			"lines":    []any{map[string]any{"sku": "X1"}},
		},
	})

	v, err := d.Get("order.customer.email")
	if err != nil {
		t.Fatalf("Get(order.customer.email) error = %v", err)
	}
	if v != "a@b.c" {
		t.Errorf("Get(order.customer.email) = %v; want a@b.c", v)
	}

	v, err = d.Get("order.lines.0.sku")
	if err != nil {
		t.Fatalf("Get(order.lines.0.sku) error = %v", err)
	}
	if v != "X1" {
		t.Errorf("Get(order.lines.0.sku) = %v; want X1", v)
	}
}

func TestActionData_GetOr(t *testing.T) {
	d := Create(Values{"a": 1})

	if v := d.GetOr("a", 99); v != 1 {
		t.Errorf("GetOr(a) = %v; want 1", v)
	}
	if v := d.GetOr("b", 99); v != 99 {
		t.Errorf("GetOr(b) = %v; want 99", v)
	}
}

func TestActionData_Find_Ambiguous(t *testing.T) {
	d := New(Config{},
		Entry{Sig: KeySignature("x").WithTags("t"), Value: 1},
		Entry{Sig: KeySignature("y").WithTags("t"), Value: 2},
	)

	_, err := d.GetByTags("t")
	if !errors.Is(err, ErrFoundMoreThanOne) {
		t.Errorf("GetByTags(t) error = %v; want ErrFoundMoreThanOne", err)
	}
}

func TestActionData_Find_EqualValuesNotAmbiguous(t *testing.T) {
	d := New(Config{},
		Entry{Sig: KeySignature("x").WithTags("t"), Value: "same"},
		Entry{Sig: KeySignature("y").WithTags("t"), Value: "same"},
	)

	v, err := d.GetByTags("t")
	if err != nil {
		t.Fatalf("GetByTags(t) error = %v", err)
	}
	if v != "same" {
		t.Errorf("GetByTags(t) = %v; want same", v)
	}
}

func TestActionData_GetAs(t *testing.T) {
	d := New(Config{}, Entry{Sig: TypeSignature(TypeOf[RetryPolicy]()), Value: NewRetryPolicy()})

	p, err := GetAs[RetryPolicy](d)
	if err != nil {
		t.Fatalf("GetAs[RetryPolicy] error = %v", err)
	}
	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d; want 3", p.MaxAttempts)
	}
}

func TestActionData_GetAs_WrongValueType(t *testing.T) {
	d := New(Config{}, Entry{Sig: TypeSignature(TypeOf[RetryPolicy]()), Value: "not a policy"})

	_, err := GetAs[RetryPolicy](d)
	if !errors.Is(err, ErrNotProperlyConfigured) {
		t.Errorf("GetAs error = %v; want ErrNotProperlyConfigured", err)
	}
}

func TestActionData_Evolve_LastWriteWins(t *testing.T) {
	d := Create(Values{"k": "old"})

	once := d.Evolve(Values{"k": "new"})
	twice := once.Evolve(Values{"k": "new"})

	for name, got := range map[string]ActionData{"once": once, "twice": twice} {
		if len(got.Entries()) != 1 {
			t.Errorf("%s: %d entries; want 1", name, len(got.Entries()))
		}
		if v, _ := got.Get("k"); v != "new" {
			t.Errorf("%s: k = %v; want new", name, v)
		}
	}
	if v, _ := d.Get("k"); v != "old" {
		t.Errorf("original snapshot mutated: k = %v; want old", v)
	}
}

func TestActionData_Evolve_KeepsSignatureIdentity(t *testing.T) {
	sig := KeySignature("user").WithTags("db").WithType(TypeOf[string]())
	d := New(Config{}, Entry{Sig: sig, Value: "alice"})

	out := d.Evolve(Values{"user": "bob"})

	got := out.Entries()[0].Sig
	if !got.Equal(sig) {
		t.Errorf("evolved signature = %s; want %s", got, sig)
	}
}

func TestActionData_Register_Duplicate(t *testing.T) {
	sig := KeySignature("token")
	d, err := Create(nil).Register(sig, "abc")
	if err != nil {
		t.Fatalf("first Register error = %v", err)
	}

	_, err = d.Register(sig, "def")
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("second Register error = %v; want ErrAlreadyRegistered", err)
	}
}

func TestActionData_Remove(t *testing.T) {
	sig := KeySignature("token")
	d := New(Config{}, Entry{Sig: sig, Value: "abc"})

	out, err := d.Remove(sig)
	if err != nil {
		t.Fatalf("Remove error = %v", err)
	}
	if out.Has("token") {
		t.Errorf("token still present after Remove")
	}

	if _, err := out.Remove(sig); !errors.Is(err, ErrNothingFound) {
		t.Errorf("Remove of absent signature error = %v; want ErrNothingFound", err)
	}
}

func TestActionData_Discard_IgnoresMissing(t *testing.T) {
	d := Create(Values{"a": 1})

	out := d.Discard(KeySignature("nope"))

	if len(out.Entries()) != 1 {
		t.Errorf("Discard of absent key changed the registry: %v", out.Entries())
	}
}

func TestActionData_WithNewData_KeepsExecutionMeta(t *testing.T) {
	d := Create(Values{"a": 1}).WithSkip()

	out := d.WithNewData(Values{"b": 2})

	if out.ExecutionID() != d.ExecutionID() {
		t.Errorf("execution ID changed across WithNewData")
	}
	if !out.Skipped() {
		t.Errorf("skip flag lost across WithNewData")
	}
	if out.Has("a") || !out.Has("b") {
		t.Errorf("data not replaced: %v", out.AsMap())
	}
}

func TestActionData_WithFreshExecution(t *testing.T) {
	d := Create(Values{"a": 1})
	out := d.WithFreshExecution()

	if out.ExecutionID() == d.ExecutionID() {
		t.Errorf("fresh execution kept the old execution ID")
	}
	if !out.Has("a") {
		t.Errorf("fresh execution dropped the data")
	}
}

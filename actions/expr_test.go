package actions

import (
	"errors"
	"testing"

	"github.com/cascadeflow/cascade/flow"
)

func TestExprCondition(t *testing.T) {
	c := ExprCondition("total >= 100 && currency == 'EUR'")

	ok, err := c.ValidateWith(flow.Values{"total": 250, "currency": "EUR"})
	if err != nil || !ok {
		t.Errorf("Validate = %v, %v; want true, nil", ok, err)
	}
	ok, err = c.ValidateWith(flow.Values{"total": 50, "currency": "EUR"})
	if err != nil || ok {
		t.Errorf("Validate = %v, %v; want false, nil", ok, err)
	}
}

func TestExprCondition_UndefinedVariableIsFalse(t *testing.T) {
	c := ExprCondition("missing == 'x'")

	ok, err := c.ValidateWith(flow.Values{})
	if err != nil || ok {
		t.Errorf("Validate with undefined variable = %v, %v; want false, nil", ok, err)
	}
}

func TestExprCondition_NonBoolResult(t *testing.T) {
	c := ExprCondition("1 + 1")

	_, err := c.Validate(flow.Create(flow.Values{}))
	if !errors.Is(err, flow.ErrNotProperlyConfigured) {
		t.Errorf("Validate error = %v; want ErrNotProperlyConfigured", err)
	}
}

func TestExprTransform(t *testing.T) {
	out, err := flow.Execute(
		ExprTransform("total_with_vat", "total * 1.21"),
		flow.Create(flow.Values{"total": 100.0}),
	)
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	v, _ := out.Get("total_with_vat")
	if v != 121.0 {
		t.Errorf("total_with_vat = %v; want 121", v)
	}
}

func TestExprTransform_NestedAccess(t *testing.T) {
	out, err := flow.Execute(
		ExprTransform("email", "user.contact.email"),
		flow.Create(flow.Values{
			"user": map[string]any{"contact": map[string]any{"email": "a@b.c"}},
		}),
	)
	if err != nil {
		t.Fatalf("Execute error = %v", err)
	}
	if v, _ := out.Get("email"); v != "a@b.c" {
		t.Errorf("email = %v; want a@b.c", v)
	}
}

func TestEval_Base64Functions(t *testing.T) {
	out, err := Eval(`base64_decode(base64_encode("round"))`, nil)
	if err != nil {
		t.Fatalf("Eval error = %v", err)
	}
	if out != "round" {
		t.Errorf("round trip = %v; want round", out)
	}
}

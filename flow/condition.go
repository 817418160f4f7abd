package flow

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

const (
	invertedPrefix   = "Inverted condition: "
	notProvidedValue = "<NOT-PROVIDED>"
)

// Condition is a boolean-valued action. In a chain it acts as a check that
// fails the pipeline when not met; Switch and ConditionalAction use it for
// branching without failing. Conditions are immutable: the algebra methods
// (Not, And, Or) return new instances.
type Condition struct {
	name        string
	failMessage string
	inverted    bool
	sys         bool
	wrapErr     func(msg string) error
	check       func(data ActionData) (bool, error)
}

// NewCondition builds a condition from a validation func. The fail message
// may interpolate registry fields with {key} placeholders, resolved at
// failure time.
func NewCondition(name, failMessage string, check func(data ActionData) (bool, error)) *Condition {
	return &Condition{name: name, failMessage: failMessage, check: check}
}

// WithError returns a copy failing with a custom error constructor instead
// of the default ErrConditionNotMet wrapping.
func (c *Condition) WithError(wrap func(msg string) error) *Condition {
	out := *c
	out.wrapErr = wrap
	return &out
}

func (c *Condition) Name() string        { return c.name }
func (c *Condition) Description() string { return c.failMessage }

// FailMessage returns the configured failure message template.
func (c *Condition) FailMessage() string { return c.failMessage }

// IsInverted reports whether the condition's outcome is negated.
func (c *Condition) IsInverted() bool { return c.inverted }

// NameWithInverted prefixes the name with "~" when the condition is inverted.
func (c *Condition) NameWithInverted() string {
	if c.inverted {
		return "~" + c.name
	}
	return c.name
}

func (c *Condition) isSystemAction() bool { return c.sys }

// Validate evaluates the condition against the snapshot, applying the
// inversion flag.
func (c *Condition) Validate(data ActionData) (bool, error) {
	ok, err := c.check(data)
	if err != nil {
		return false, err
	}
	if c.inverted {
		return !ok, nil
	}
	return ok, nil
}

// ValidateWith is a shortcut for validating against plain keyed values.
func (c *Condition) ValidateWith(data Values) (bool, error) {
	return c.Validate(Create(data))
}

// Run passes the snapshot through when the condition validates and fails
// with the configured error otherwise.
func (c *Condition) Run(data ActionData) (ActionData, error) {
	ok, err := c.Validate(data)
	if err != nil {
		return data, err
	}
	if !ok {
		return data, c.fail(data)
	}
	return data, nil
}

func (c *Condition) RunAsync(_ context.Context, data ActionData) (ActionData, error) {
	return c.Run(data)
}

var failMessageField = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.]*)\}`)

// fail builds the condition failure, interpolating fail-message fields from
// the snapshot. Missing fields render as a sentinel placeholder.
func (c *Condition) fail(data ActionData) error {
	msg := failMessageField.ReplaceAllStringFunc(c.failMessage, func(m string) string {
		field := m[1 : len(m)-1]
		return fmt.Sprintf("%v", data.GetOr(field, notProvidedValue))
	})
	not := ""
	if c.inverted {
		not = "not "
	}
	full := fmt.Sprintf("%s%s failed: %s", not, c.name, msg)
	if c.wrapErr != nil {
		return c.wrapErr(full)
	}
	return fmt.Errorf("%w: %s", ErrConditionNotMet, full)
}

// Not returns the negated condition. The fail message gains an "Inverted
// condition:" prefix, stripped again on double negation.
func (c *Condition) Not() *Condition {
	out := *c
	out.inverted = !c.inverted
	if strings.HasPrefix(out.failMessage, invertedPrefix) {
		out.failMessage = strings.TrimPrefix(out.failMessage, invertedPrefix)
	} else {
		out.failMessage = invertedPrefix + out.failMessage
	}
	return &out
}

// And combines two conditions; both operands are evaluated.
func (c *Condition) And(other *Condition) *Condition {
	return newOperator("AndOperator", c, other, func(a, b bool) bool { return a && b },
		fmt.Sprintf("Operator failed for %s and %s", c.name, other.name))
}

// Or combines two conditions; both operands are evaluated.
func (c *Condition) Or(other *Condition) *Condition {
	return newOperator("OrOperator", c, other, func(a, b bool) bool { return a || b },
		"None of conditions is true")
}

func newOperator(name string, c1, c2 *Condition, combine func(a, b bool) bool, failMessage string) *Condition {
	op := NewCondition(
		fmt.Sprintf("%s[%s, %s]", name, c1.NameWithInverted(), c2.NameWithInverted()),
		failMessage,
		func(data ActionData) (bool, error) {
			v1, err := c1.Validate(data)
			if err != nil {
				return false, err
			}
			v2, err := c2.Validate(data)
			if err != nil {
				return false, err
			}
			return combine(v1, v2), nil
		})
	op.sys = true
	return op
}

// IfThen executes the action only when this condition validates; the
// snapshot passes through unchanged otherwise.
func (c *Condition) IfThen(a Action) *ConditionalAction {
	return &ConditionalAction{
		base:      base{name: fmt.Sprintf("If(%s) -> %s", c.NameWithInverted(), a.Name())},
		condition: c,
		action:    a,
	}
}

// AlwaysTrue never fails; Switch uses it as the catch-all branch.
func AlwaysTrue() *Condition {
	return NewCondition("AlwaysTrue", "", func(ActionData) (bool, error) { return true, nil })
}

// NewConditionSet builds the conjunction of an ordered list of conditions.
func NewConditionSet(name string, conditions ...*Condition) *Condition {
	names := make([]string, len(conditions))
	messages := make([]string, len(conditions))
	for i, cond := range conditions {
		names[i] = cond.NameWithInverted()
		messages[i] = cond.failMessage
	}
	set := NewCondition(
		fmt.Sprintf("%s[%s]", name, strings.Join(names, " AND ")),
		"("+strings.Join(messages, ", ")+")",
		func(data ActionData) (bool, error) {
			for _, cond := range conditions {
				ok, err := cond.Validate(data)
				if err != nil || !ok {
					return false, err
				}
			}
			return true, nil
		})
	set.sys = true
	return set
}

// If is sugar for NewConditionSet, reading naturally in Switch cases.
func If(conditions ...*Condition) *Condition {
	return NewConditionSet("If", conditions...)
}

// IsInData validates that a value with the given key exists.
func IsInData(field string) *Condition {
	return NewCondition(
		fmt.Sprintf("IsInData[%s]", field),
		fmt.Sprintf("Field %s is not in data", field),
		func(data ActionData) (bool, error) { return data.Has(field), nil })
}

// SignatureIsInData validates that a value with the exact signature exists.
func SignatureIsInData(sig Signature) *Condition {
	return NewCondition(
		fmt.Sprintf("SignatureIsInData[%s]", sig),
		fmt.Sprintf("Field %s is not in data", sig),
		func(data ActionData) (bool, error) { return data.HasSignature(sig), nil })
}

// NonNoneDataValues validates that all given fields are present and non-nil.
func NonNoneDataValues(fields ...string) *Condition {
	return NewCondition(
		fmt.Sprintf("NonNoneDataValues[%s]", strings.Join(fields, ", ")),
		fmt.Sprintf("Data has to contain following non-none fields: %v", fields),
		func(data ActionData) (bool, error) {
			for _, f := range fields {
				v, err := data.Get(f)
				if err != nil || v == nil {
					return false, nil
				}
			}
			return true, nil
		})
}

// PropertyCondition validates a field of an object in the registry against
// an expected value. The object may be a struct (exported field access) or
// a keyed map.
func PropertyCondition(objectKey, field string, equalTo any) *Condition {
	return NewCondition(
		fmt.Sprintf("PropertyCondition[%s.%s == %v]", objectKey, field, equalTo),
		fmt.Sprintf("Property %s of {%s} does not equal %v", field, objectKey, equalTo),
		func(data ActionData) (bool, error) {
			obj, err := data.Get(objectKey)
			if err != nil {
				return false, err
			}
			value, err := fieldOf(obj, field)
			if err != nil {
				return false, err
			}
			return reflect.DeepEqual(value, equalTo), nil
		})
}

func fieldOf(obj any, field string) (any, error) {
	if m, ok := obj.(map[string]any); ok {
		v, has := m[field]
		if !has {
			return nil, fmt.Errorf("%w: key %q in %T", ErrNothingFound, field, obj)
		}
		return v, nil
	}
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: cannot read field %q of %T", ErrNotProperlyConfigured, field, obj)
	}
	fv := rv.FieldByName(field)
	if !fv.IsValid() {
		return nil, fmt.Errorf("%w: field %q in %T", ErrNothingFound, field, obj)
	}
	return fv.Interface(), nil
}

// newLoopCondition validates a sub-condition against each element of an
// iterable field, binding every element under asKey, and reduces the
// outcomes with the given reducer.
func newLoopCondition(name, failMessage, iterableKey, asKey string, cond *Condition,
	reduce func(results []bool) bool) *Condition {
	loop := NewCondition(name, failMessage, func(data ActionData) (bool, error) {
		iterable, err := data.Get(iterableKey)
		if err != nil {
			return false, err
		}
		elements, err := elementsOf(iterable)
		if err != nil {
			return false, fmt.Errorf("field %q of %s: %w", iterableKey, name, err)
		}
		results := make([]bool, len(elements))
		for i, el := range elements {
			ok, err := cond.Validate(data.Evolve(Values{asKey: el}))
			if err != nil {
				return false, err
			}
			results[i] = ok
		}
		return reduce(results), nil
	})
	loop.sys = true
	return loop
}

// NewAnyCondition validates that at least one element of the iterable field
// meets the sub-condition.
func NewAnyCondition(iterableKey, asKey string, cond *Condition) *Condition {
	return newLoopCondition(
		fmt.Sprintf("AnyCondition[%s]", cond.NameWithInverted()),
		fmt.Sprintf("Any of the given items meet the condition [%s: %s]", cond.name, cond.failMessage),
		iterableKey, asKey, cond,
		func(results []bool) bool {
			for _, r := range results {
				if r {
					return true
				}
			}
			return false
		})
}

// NewAllCondition validates that every element of the iterable field meets
// the sub-condition.
func NewAllCondition(iterableKey, asKey string, cond *Condition) *Condition {
	return newLoopCondition(
		fmt.Sprintf("AllCondition[%s]", cond.NameWithInverted()),
		fmt.Sprintf("All of the given items meet the condition [%s: %s]", cond.name, cond.failMessage),
		iterableKey, asKey, cond,
		func(results []bool) bool {
			for _, r := range results {
				if !r {
					return false
				}
			}
			return true
		})
}

// elementsOf flattens any slice or array value into []any.
func elementsOf(iterable any) ([]any, error) {
	if els, ok := iterable.([]any); ok {
		return els, nil
	}
	rv := reflect.ValueOf(iterable)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: expected a slice, got %T", ErrNotProperlyConfigured, iterable)
	}
	els := make([]any, rv.Len())
	for i := range els {
		els[i] = rv.Index(i).Interface()
	}
	return els, nil
}

// ConditionalAction executes the wrapped action only when its condition is
// met.
type ConditionalAction struct {
	base
	system
	condition *Condition
	action    Action
}

func (c *ConditionalAction) Run(data ActionData) (ActionData, error) {
	ok, err := c.condition.Validate(data)
	if err != nil {
		return data, err
	}
	if !ok {
		return data, nil
	}
	return Execute(c.action, data)
}

func (c *ConditionalAction) RunAsync(ctx context.Context, data ActionData) (ActionData, error) {
	ok, err := c.condition.Validate(data)
	if err != nil {
		return data, err
	}
	if !ok {
		return data, nil
	}
	return ExecuteAsync(ctx, c.action, data)
}

// Package actions provides ready-made pipeline actions built on the core
// framework: expression-based conditions and transforms, HTTP data sources,
// identifiers, delays and logging events.
package actions

import (
	"encoding/base64"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/cascadeflow/cascade/flow"
)

// Functions available in every expression.
var exprFunctions = []expr.Option{
	expr.Function("base64_encode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	}),
	expr.Function("base64_decode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}),
}

// Eval evaluates one expression against the keyed registry values.
func Eval(expression string, env map[string]any) (any, error) {
	if env == nil {
		env = map[string]any{}
	}
	env["null"] = nil

	opts := []expr.Option{
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	}
	opts = append(opts, exprFunctions...)

	program, err := expr.Compile(expression, opts...)
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", expression, err)
	}
	return expr.Run(program, env)
}

// ExprCondition validates a boolean expression against the registry, e.g.
// "order.total >= 100 && user.verified".
func ExprCondition(expression string) *flow.Condition {
	return flow.NewCondition(
		"Expr["+expression+"]",
		"Expression "+expression+" is not true",
		func(data flow.ActionData) (bool, error) {
			out, err := Eval(expression, data.AsMap())
			if err != nil {
				return false, err
			}
			b, ok := out.(bool)
			if !ok {
				return false, fmt.Errorf("%w: expression %q evaluated to %T, want bool",
					flow.ErrNotProperlyConfigured, expression, out)
			}
			return b, nil
		})
}

// ExprTransform evaluates an expression and stores the result under the
// target key.
func ExprTransform(targetKey, expression string) *flow.Transformation {
	return flow.NewTransformation(
		"ExprTransform["+targetKey+"]",
		func(data flow.ActionData) (flow.ActionData, error) {
			out, err := Eval(expression, data.AsMap())
			if err != nil {
				return data, err
			}
			return data.Set(targetKey, out), nil
		})
}

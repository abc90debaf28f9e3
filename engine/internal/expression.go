package internal

import (
	"fmt"
	"sync"

	"github.com/gclaussn/go-procengine/engine"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// hclEvaluator evaluates conditions as HCL expressions - e.g. `result == "ok"` or `amount > 100 && approved`.
//
// Variables with a JSON encoding are converted into their implied cty type. All other variables are strings.
type hclEvaluator struct {
	expressions sync.Map // condition -> hclsyntax.Expression
}

func (e *hclEvaluator) Evaluate(condition string, variables map[string]engine.Data) (bool, error) {
	expr, err := e.parse(condition)
	if err != nil {
		return false, err
	}

	vars := make(map[string]cty.Value, len(variables))
	for name, data := range variables {
		value, err := toCtyValue(data)
		if err != nil {
			return false, fmt.Errorf("failed to convert variable %s: %v", name, err)
		}
		vars[name] = value
	}

	value, diags := expr.Value(&hcl.EvalContext{Variables: vars})
	if diags.HasErrors() {
		return false, fmt.Errorf("failed to evaluate condition %q: %s", condition, diags.Error())
	}

	if value.IsNull() || !value.IsKnown() || value.Type() != cty.Bool {
		return false, fmt.Errorf("condition %q must evaluate to a bool, but evaluated to %s", condition, value.Type().FriendlyName())
	}
	return value.True(), nil
}

func (e *hclEvaluator) parse(condition string) (hclsyntax.Expression, error) {
	if cached, ok := e.expressions.Load(condition); ok {
		return cached.(hclsyntax.Expression), nil
	}

	expr, diags := hclsyntax.ParseExpression([]byte(condition), "condition", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse condition %q: %s", condition, diags.Error())
	}

	e.expressions.Store(condition, expr)
	return expr, nil
}

func toCtyValue(data engine.Data) (cty.Value, error) {
	if data.Encoding != "json" {
		return cty.StringVal(data.Value), nil
	}

	b := []byte(data.Value)

	t, err := ctyjson.ImpliedType(b)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(b, t)
}

// validateCondition parses a condition without evaluating it.
func validateCondition(condition string) error {
	_, diags := hclsyntax.ParseExpression([]byte(condition), "condition", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return fmt.Errorf("%s", diags.Error())
	}
	return nil
}

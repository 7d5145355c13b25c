package execution

import (
	"fmt"
	"strings"
)

// EvalContext is what a condition expression can see.
type EvalContext struct {
	// Inputs maps an upstream node id to the output it produced.
	Inputs map[string]any
	// Variables are the session variables.
	Variables map[string]any
}

// EvalCondition evaluates a condition expression. Supported forms:
//   - "true", "false"
//   - "<nodeID>.resolved" (the node has produced an output)
//   - "<path> == '<value>'" and "<path> != '<value>'"
//   - "<path>" (truthy lookup)
//   - any of the above joined with "&&" and "||" ("&&" binds tighter)
//
// A path is a variable name or "<nodeID>.<key>" into an upstream output.
// Unknown forms evaluate to false.
func EvalCondition(expr string, ctx EvalContext) bool {
	expr = strings.TrimSpace(expr)

	if strings.Contains(expr, "||") {
		for _, part := range strings.Split(expr, "||") {
			if EvalCondition(part, ctx) {
				return true
			}
		}
		return false
	}

	if strings.Contains(expr, "&&") {
		parts := strings.SplitN(expr, "&&", 2)
		return EvalCondition(parts[0], ctx) && EvalCondition(parts[1], ctx)
	}

	switch expr {
	case "":
		return false
	case "true":
		return true
	case "false":
		return false
	}

	if strings.HasSuffix(expr, ".resolved") {
		nodeID := strings.TrimSuffix(expr, ".resolved")
		if _, ok := ctx.Inputs[nodeID]; ok {
			return true
		}
		_, ok := ctx.Variables["output_"+nodeID]
		return ok
	}

	if field, value, ok := parseComparison(expr, "!="); ok {
		v, found := lookup(field, ctx)
		return !found || fmt.Sprint(v) != value
	}

	if field, value, ok := parseComparison(expr, "=="); ok {
		v, found := lookup(field, ctx)
		return found && fmt.Sprint(v) == value
	}

	v, found := lookup(expr, ctx)
	return found && truthy(v)
}

// parseComparison splits "<field> <op> '<value>'".
func parseComparison(expr, op string) (string, string, bool) {
	parts := strings.SplitN(expr, op, 2)
	if len(parts) != 2 {
		return "", "", false
	}
	field := strings.TrimSpace(parts[0])
	value := strings.TrimSpace(parts[1])
	if len(value) >= 2 && value[0] == '\'' && value[len(value)-1] == '\'' {
		value = value[1 : len(value)-1]
	}
	return field, value, field != ""
}

func lookup(path string, ctx EvalContext) (any, bool) {
	if v, ok := ctx.Variables[path]; ok {
		return v, true
	}
	nodeID, key, ok := strings.Cut(path, ".")
	if !ok {
		return nil, false
	}
	out, ok := ctx.Inputs[nodeID]
	if !ok {
		return nil, false
	}
	for _, k := range strings.Split(key, ".") {
		m, ok := out.(map[string]any)
		if !ok {
			return nil, false
		}
		if out, ok = m[k]; !ok {
			return nil, false
		}
	}
	return out, true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false"
	case int:
		return t != 0
	case float64:
		return t != 0
	}
	return true
}

// Package formula implements the sandboxed arithmetic expression language
// used by emission-factor derivation specs.
//
// The language is deliberately tiny: numeric literals, variable references,
// the binary operators + - * / % **, unary + -, and calls to exactly four
// functions (min, max, abs, round). Everything else is rejected during
// parsing, before any evaluation happens. This is a security boundary:
// tenant-supplied expressions must never reach a general-purpose evaluator,
// the filesystem, or any name resolution beyond the supplied variables.
//
// The grammar has no loops and no recursion, so evaluation is O(expression
// size) and cannot hang.
package formula

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrDisallowed reports a syntactic construct outside the whitelist.
	ErrDisallowed = errors.New("disallowed expression")
	// ErrEvaluation reports any failure while evaluating a valid expression
	// (undefined variable, division by zero, bad numeric coercion).
	ErrEvaluation = errors.New("formula evaluation failed")
)

// allowedFuncs is the closed set of callable identifiers.
var allowedFuncs = map[string]bool{
	"min":   true,
	"max":   true,
	"abs":   true,
	"round": true,
}

// Evaluate parses expr, validates it against the whitelist and evaluates it
// over the supplied variables.
//
// Variables with a nil or empty-string value are dropped from scope (treated
// as absent, not as zero). All retained variables are coerced to float64 up
// front; a value that cannot be coerced fails the whole evaluation even if
// the expression never references it, matching the strictness of the scope
// the expression is evaluated in.
func Evaluate(expr string, variables map[string]any) (float64, error) {
	root, err := Parse(expr)
	if err != nil {
		return 0, err
	}

	scope := make(map[string]float64, len(variables))
	for name, raw := range variables {
		if raw == nil || raw == "" {
			continue
		}
		v, err := coerce(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: variable %q: %v", ErrEvaluation, name, err)
		}
		scope[name] = v
	}

	return eval(root, scope)
}

func coerce(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t)
		}
		return f, nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", t.String())
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported value type %T", v)
	}
}

func eval(n Node, scope map[string]float64) (float64, error) {
	switch t := n.(type) {
	case *Literal:
		return t.Value, nil

	case *Variable:
		v, ok := scope[t.Name]
		if !ok {
			return 0, fmt.Errorf("%w: undefined variable %q", ErrEvaluation, t.Name)
		}
		return v, nil

	case *Unary:
		v, err := eval(t.Operand, scope)
		if err != nil {
			return 0, err
		}
		if t.Op == "-" {
			return -v, nil
		}
		return v, nil

	case *Binary:
		left, err := eval(t.Left, scope)
		if err != nil {
			return 0, err
		}
		right, err := eval(t.Right, scope)
		if err != nil {
			return 0, err
		}
		return applyBinary(t.Op, left, right)

	case *Call:
		args := make([]float64, len(t.Args))
		for i, a := range t.Args {
			v, err := eval(a, scope)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		return applyCall(t.Func, args)

	default:
		return 0, fmt.Errorf("%w: unknown node type %T", ErrEvaluation, n)
	}
}

func applyBinary(op string, left, right float64) (float64, error) {
	switch op {
	case "+":
		return left + right, nil
	case "-":
		return left - right, nil
	case "*":
		return left * right, nil
	case "/":
		if right == 0 {
			return 0, fmt.Errorf("%w: division by zero", ErrEvaluation)
		}
		return left / right, nil
	case "%":
		if right == 0 {
			return 0, fmt.Errorf("%w: modulo by zero", ErrEvaluation)
		}
		return math.Mod(left, right), nil
	case "**":
		v := math.Pow(left, right)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %g ** %g is not finite", ErrEvaluation, left, right)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("%w: unknown operator %q", ErrEvaluation, op)
	}
}

func applyCall(name string, args []float64) (float64, error) {
	switch name {
	case "min":
		if len(args) == 0 {
			return 0, fmt.Errorf("%w: min requires at least one argument", ErrEvaluation)
		}
		out := args[0]
		for _, a := range args[1:] {
			out = math.Min(out, a)
		}
		return out, nil
	case "max":
		if len(args) == 0 {
			return 0, fmt.Errorf("%w: max requires at least one argument", ErrEvaluation)
		}
		out := args[0]
		for _, a := range args[1:] {
			out = math.Max(out, a)
		}
		return out, nil
	case "abs":
		if len(args) != 1 {
			return 0, fmt.Errorf("%w: abs takes exactly one argument", ErrEvaluation)
		}
		return math.Abs(args[0]), nil
	case "round":
		switch len(args) {
		case 1:
			return math.Round(args[0]), nil
		case 2:
			shift := math.Pow(10, math.Trunc(args[1]))
			return math.Round(args[0]*shift) / shift, nil
		default:
			return 0, fmt.Errorf("%w: round takes one or two arguments", ErrEvaluation)
		}
	default:
		// Unreachable: the parser rejects other call targets.
		return 0, fmt.Errorf("%w: function %q is not allowed", ErrDisallowed, name)
	}
}

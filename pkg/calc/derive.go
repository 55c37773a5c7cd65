package calc

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/carbonledger/core/pkg/factor"
	"github.com/carbonledger/core/pkg/formula"
)

var (
	// ErrMissingInput reports a required derivation input absent from the
	// activity's input map.
	ErrMissingInput = errors.New("missing required input")
	// ErrUnresolvableQuantity reports that no derivation path could produce
	// a quantity.
	ErrUnresolvableQuantity = errors.New("no quantity derivation possible")
)

// Derivation methods recorded in quantity traces.
const (
	MethodFormula        = "formula"
	MethodQuantityField  = "quantity_field"
	MethodFirstRequired  = "first_required"
	MethodFallbackAmount = "fallback_amount"
)

// QuantityTrace records how a quantity was derived.
type QuantityTrace struct {
	Method     string  `json:"method"`
	Expression string  `json:"expression,omitempty"`
	Output     string  `json:"output,omitempty"`
	Field      string  `json:"field,omitempty"`
	Unit       string  `json:"unit,omitempty"`
	Quantity   float64 `json:"quantity"`
}

// DeriveQuantity turns an activity's input map into a single numeric
// quantity using the factor's derivation spec. Paths are tried in order:
// formula, quantity_field, first required field, the literal "amount" input.
//
// Required fields are validated up front regardless of which path is later
// used. The first-required fallback is a known weak default when several
// required fields exist; it is kept deliberately rather than hardened.
func DeriveQuantity(spec factor.DerivationSpec, inputs map[string]any, efKey string) (float64, QuantityTrace, error) {
	for _, name := range spec.Required {
		if _, ok := inputs[name]; !ok {
			return 0, QuantityTrace{}, fmt.Errorf("%w: %q for EF %q", ErrMissingInput, name, efKey)
		}
	}

	inputs = withDefaults(spec, inputs)

	if spec.Formula != nil {
		output := spec.Formula.Output
		if output == "" {
			output = spec.QuantityField
		}
		if output == "" {
			output = "quantity"
		}
		q, err := formula.Evaluate(spec.Formula.Expression, inputs)
		if err != nil {
			return 0, QuantityTrace{}, fmt.Errorf("formula for EF %q: %w", efKey, err)
		}
		return q, QuantityTrace{
			Method:     MethodFormula,
			Expression: spec.Formula.Expression,
			Output:     output,
			Unit:       spec.Formula.Unit,
			Quantity:   q,
		}, nil
	}

	if spec.QuantityField != "" {
		if v, ok := inputs[spec.QuantityField]; ok {
			q, err := toFloat(v)
			if err != nil {
				return 0, QuantityTrace{}, fmt.Errorf("quantity field %q for EF %q: %w", spec.QuantityField, efKey, err)
			}
			return q, QuantityTrace{Method: MethodQuantityField, Field: spec.QuantityField, Quantity: q}, nil
		}
	}

	if len(spec.Required) > 0 {
		field := spec.Required[0]
		q, err := toFloat(inputs[field])
		if err != nil {
			return 0, QuantityTrace{}, fmt.Errorf("required field %q for EF %q: %w", field, efKey, err)
		}
		return q, QuantityTrace{Method: MethodFirstRequired, Field: field, Quantity: q}, nil
	}

	if v, ok := inputs["amount"]; ok {
		q, err := toFloat(v)
		if err != nil {
			return 0, QuantityTrace{}, fmt.Errorf("amount for EF %q: %w", efKey, err)
		}
		return q, QuantityTrace{Method: MethodFallbackAmount, Field: "amount", Quantity: q}, nil
	}

	return 0, QuantityTrace{}, fmt.Errorf("%w for EF %q", ErrUnresolvableQuantity, efKey)
}

// withDefaults fills inputs missing from the activity with the spec's
// declared field defaults. The original map is never mutated.
func withDefaults(spec factor.DerivationSpec, inputs map[string]any) map[string]any {
	missing := 0
	for name, def := range spec.Fields {
		if def.Default == nil {
			continue
		}
		if _, ok := inputs[name]; !ok {
			missing++
		}
	}
	if missing == 0 {
		return inputs
	}

	merged := make(map[string]any, len(inputs)+missing)
	for k, v := range inputs {
		merged[k] = v
	}
	for name, def := range spec.Fields {
		if def.Default == nil {
			continue
		}
		if _, ok := merged[name]; !ok {
			merged[name] = def.Default
		}
	}
	return merged
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", t)
		}
		return f, nil
	case nil:
		return 0, errors.New("value is nil")
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", v)
	}
}

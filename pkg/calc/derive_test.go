package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonledger/core/pkg/factor"
)

func TestDeriveQuantityRequiredValidation(t *testing.T) {
	spec := factor.DerivationSpec{
		Required:      []string{"distance_km", "payload_ton"},
		QuantityField: "distance_km",
	}

	// Required check runs before any derivation path, even when the
	// quantity field itself is present.
	_, _, err := DeriveQuantity(spec, map[string]any{"distance_km": 10}, "freight")
	require.ErrorIs(t, err, ErrMissingInput)
	assert.Contains(t, err.Error(), "payload_ton")
}

func TestDeriveQuantityFormulaPath(t *testing.T) {
	spec := factor.DerivationSpec{
		Required: []string{"distance_km", "payload_ton"},
		Formula:  &factor.FormulaSpec{Expression: "distance_km * payload_ton * load_factor", Unit: "t.km"},
	}
	inputs := map[string]any{"distance_km": 100.0, "payload_ton": 2.0, "load_factor": 1.0}

	q, trace, err := DeriveQuantity(spec, inputs, "freight")
	require.NoError(t, err)
	assert.Equal(t, 200.0, q)
	assert.Equal(t, MethodFormula, trace.Method)
	assert.Equal(t, "distance_km * payload_ton * load_factor", trace.Expression)
	assert.Equal(t, "quantity", trace.Output) // default output name
	assert.Equal(t, "t.km", trace.Unit)
}

func TestDeriveQuantityFormulaOutputFallback(t *testing.T) {
	spec := factor.DerivationSpec{
		Formula:       &factor.FormulaSpec{Expression: "x * 2"},
		QuantityField: "x",
	}
	_, trace, err := DeriveQuantity(spec, map[string]any{"x": 3}, "ef")
	require.NoError(t, err)
	// Output falls back to quantity_field before the literal default.
	assert.Equal(t, "x", trace.Output)
	assert.Equal(t, 6.0, trace.Quantity)
}

func TestDeriveQuantityFieldDefaults(t *testing.T) {
	spec := factor.DerivationSpec{
		Required: []string{"distance_km", "payload_ton"},
		Fields: map[string]factor.FieldDef{
			"load_factor": {Default: 0.8},
		},
		Formula: &factor.FormulaSpec{Expression: "distance_km * payload_ton * load_factor"},
	}
	inputs := map[string]any{"distance_km": 100.0, "payload_ton": 2.0}

	q, _, err := DeriveQuantity(spec, inputs, "freight")
	require.NoError(t, err)
	assert.Equal(t, 160.0, q)

	// A supplied value wins over the default, and the caller's map stays
	// untouched.
	inputs["load_factor"] = 0.5
	q, _, err = DeriveQuantity(spec, inputs, "freight")
	require.NoError(t, err)
	assert.Equal(t, 100.0, q)
	assert.Len(t, inputs, 3)
}

func TestDeriveQuantityFieldPath(t *testing.T) {
	spec := factor.DerivationSpec{QuantityField: "kwh"}
	q, trace, err := DeriveQuantity(spec, map[string]any{"kwh": "42.5"}, "grid")
	require.NoError(t, err)
	assert.Equal(t, 42.5, q)
	assert.Equal(t, MethodQuantityField, trace.Method)
	assert.Equal(t, "kwh", trace.Field)
}

func TestDeriveQuantityFirstRequiredFallback(t *testing.T) {
	spec := factor.DerivationSpec{Required: []string{"litres", "site"}}
	q, trace, err := DeriveQuantity(spec, map[string]any{"litres": 12.0, "site": "3"}, "diesel")
	require.NoError(t, err)
	assert.Equal(t, 12.0, q)
	assert.Equal(t, MethodFirstRequired, trace.Method)
	assert.Equal(t, "litres", trace.Field)
}

func TestDeriveQuantityAmountFallback(t *testing.T) {
	q, trace, err := DeriveQuantity(factor.DerivationSpec{}, map[string]any{"amount": 4}, "ef")
	require.NoError(t, err)
	assert.Equal(t, 4.0, q)
	assert.Equal(t, MethodFallbackAmount, trace.Method)
}

func TestDeriveQuantityUnresolvable(t *testing.T) {
	_, _, err := DeriveQuantity(factor.DerivationSpec{}, map[string]any{"weight": 4}, "ef")
	require.ErrorIs(t, err, ErrUnresolvableQuantity)
}

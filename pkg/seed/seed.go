// Package seed ships a small starter catalog of emission factors so a fresh
// deployment can calculate before any tenant import has happened.
package seed

import (
	"time"

	"github.com/carbonledger/core/pkg/factor"
)

func floatPtr(f float64) *float64 { return &f }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// Factors returns the built-in starter factors for an org. Values follow
// commonly published combustion and grid factors; they are starting points,
// not a substitute for a tenant's own sourced catalog.
func Factors(orgID string) []*factor.Factor {
	return []*factor.Factor{
		{
			OrgID:    orgID,
			Key:      "diesel_stationary",
			Name:     "Diesel - stationary combustion",
			Unit:     "litre",
			Value:    floatPtr(2.7078),
			Scope:    "Scope1",
			Category: "Stationary Combustion",
			ActivityIDFields: factor.DerivationSpec{
				Required:      []string{"litres"},
				QuantityField: "litres",
				Fields: map[string]factor.FieldDef{
					"litres": {Label: "Fuel volume", Type: "number", Unit: "litre"},
				},
			},
			GWPVersion:       "IPCC_AR5",
			ValidFrom:        datePtr(2022, 7, 1),
			Status:           factor.StatusActive,
			LifecycleStatus:  factor.LifecycleActive,
			UncertaintyValue: floatPtr(0.05),
			Meta:             factor.Meta{Reference: "TGO EF CFP 2022/07 v1"},
		},
		{
			OrgID:    orgID,
			Key:      "grid_electricity",
			Name:     "Grid electricity",
			Unit:     "kWh",
			Value:    floatPtr(0.4999),
			Scope:    "Scope2",
			Category: "Purchased Electricity",
			ActivityIDFields: factor.DerivationSpec{
				Required:      []string{"kwh"},
				QuantityField: "kwh",
				Fields: map[string]factor.FieldDef{
					"kwh": {Label: "Electricity", Type: "number", Unit: "kWh"},
				},
			},
			GWPVersion:       "IPCC_AR5",
			ValidFrom:        datePtr(2022, 7, 1),
			Status:           factor.StatusActive,
			LifecycleStatus:  factor.LifecycleActive,
			UncertaintyValue: floatPtr(0.1),
			Meta:             factor.Meta{Reference: "TGO EF CFP 2022/07 v1"},
		},
		{
			OrgID:    orgID,
			Key:      "freight_road_ton_km",
			Name:     "Road freight (tonne-km)",
			Unit:     "t.km",
			Value:    floatPtr(0.1204),
			Scope:    "Scope3",
			Category: "Transportation",
			ActivityIDFields: factor.DerivationSpec{
				Required: []string{"distance_km", "payload_ton"},
				Fields: map[string]factor.FieldDef{
					"distance_km": {Label: "Distance", Type: "number", Unit: "km"},
					"payload_ton": {Label: "Payload", Type: "number", Unit: "t"},
					"load_factor": {Label: "Load factor", Type: "number", Default: 1.0},
				},
				Formula: &factor.FormulaSpec{
					Expression: "distance_km * payload_ton * load_factor",
					Output:     "tonne_km",
					Unit:       "t.km",
				},
			},
			GWPVersion:       "IPCC_AR5",
			ValidFrom:        datePtr(2022, 7, 1),
			Status:           factor.StatusActive,
			LifecycleStatus:  factor.LifecycleActive,
			UncertaintyValue: floatPtr(0.15),
			Meta:             factor.Meta{Reference: "TGO EF CFP 2022/07 v1"},
		},
		{
			OrgID:    orgID,
			Key:      "natural_gas_boiler",
			Name:     "Natural gas boiler (gas composition)",
			Unit:     "m3",
			Scope:    "Scope1",
			Category: "Stationary Combustion",
			GasBreakdown: factor.GasBreakdown{
				Gases: map[string]float64{"CO2": 1.9, "CH4": 0.0005, "N2O": 0.00001},
			},
			ActivityIDFields: factor.DerivationSpec{
				Required:      []string{"m3"},
				QuantityField: "m3",
				Fields: map[string]factor.FieldDef{
					"m3": {Label: "Gas volume", Type: "number", Unit: "m3"},
				},
			},
			GWPVersion:       "IPCC_AR6",
			ValidFrom:        datePtr(2022, 7, 1),
			Status:           factor.StatusActive,
			LifecycleStatus:  factor.LifecycleActive,
			UncertaintyValue: floatPtr(0.08),
			Meta:             factor.Meta{Reference: "TGO EF CFP 2022/07 v1"},
		},
	}
}

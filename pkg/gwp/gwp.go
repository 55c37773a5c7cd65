// Package gwp maps global-warming-potential version tags to fixed gas
// multiplier tables (kgCO2e per kg of gas).
package gwp

import "strings"

// Table maps an upper-cased gas symbol to its CO2e multiplier.
type Table map[string]float64

// DefaultVersion is the table used when a tag is absent or unknown.
const DefaultVersion = "IPCC_AR5"

// tables is the closed set of supported GWP versions. Values are the
// 100-year potentials published in the respective IPCC assessment reports.
var tables = map[string]Table{
	"IPCC_AR5": {
		"CO2": 1.0,
		"CH4": 28.0,
		"N2O": 265.0,
	},
	"IPCC_AR6": {
		"CO2": 1.0,
		"CH4": 27.2,
		"N2O": 273.0,
	},
	"IPCC_2013_GWP100": {
		"CO2": 1.0,
		"CH4": 28.0,
		"N2O": 265.0,
	},
}

// Normalize canonicalizes a version tag: trimmed, upper-cased, spaces
// replaced with underscores.
func Normalize(tag string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(tag)), " ", "_")
}

// Resolve returns the multiplier table for a version tag. An empty or
// unknown tag falls back to the default table; resolution never fails.
func Resolve(tag string) Table {
	if tag == "" {
		return tables[DefaultVersion]
	}
	if t, ok := tables[Normalize(tag)]; ok {
		return t
	}
	return tables[DefaultVersion]
}

// Versions lists the supported version tags.
func Versions() []string {
	out := make([]string, 0, len(tables))
	for k := range tables {
		out = append(out, k)
	}
	return out
}

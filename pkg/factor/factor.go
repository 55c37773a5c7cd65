// Package factor defines the emission-factor record, its derivation spec,
// and the auditable snapshot projection used for content hashing.
package factor

import (
	"time"
)

// Status values for an emission factor.
const (
	StatusActive     = "active"
	StatusDeprecated = "deprecated"
)

// Lifecycle workflow states.
const (
	LifecycleDraft      = "DRAFT"
	LifecycleReviewed   = "REVIEWED"
	LifecycleApproved   = "APPROVED"
	LifecycleActive     = "ACTIVE"
	LifecycleDeprecated = "DEPRECATED"
)

// GasBreakdown is a per-gas composition paired with a GWP version tag on the
// owning factor. Amounts are kg of gas per unit of activity.
type GasBreakdown struct {
	Gases map[string]float64 `json:"gases"`
}

// FieldDef describes one named input field of a derivation spec.
type FieldDef struct {
	Label   string `json:"label,omitempty"`
	Type    string `json:"type,omitempty"`
	Unit    string `json:"unit,omitempty"`
	Default any    `json:"default,omitempty"`
}

// FormulaSpec declares a sandboxed expression for deriving the activity
// quantity.
type FormulaSpec struct {
	Expression string `json:"expression"`
	Output     string `json:"output,omitempty"`
	Unit       string `json:"unit,omitempty"`
}

// DerivationSpec is the EF-declared recipe for turning an activity's input
// map into a single numeric quantity.
type DerivationSpec struct {
	Required      []string            `json:"required,omitempty"`
	Fields        map[string]FieldDef `json:"fields,omitempty"`
	Formula       *FormulaSpec        `json:"formula,omitempty"`
	QuantityField string              `json:"quantity_field,omitempty"`
}

// IsZero reports whether the spec declares nothing.
func (s DerivationSpec) IsZero() bool {
	return len(s.Required) == 0 && len(s.Fields) == 0 && s.Formula == nil && s.QuantityField == ""
}

// Factor is a versioned emission-factor record. Identity is (OrgID, Key).
// A computable factor carries either a direct Value (kgCO2e per unit) or a
// usable gas breakdown; records are never hard-deleted, only superseded
// through the version ledger.
type Factor struct {
	OrgID string `json:"org_id"`
	Key   string `json:"key"`
	Name  string `json:"name"`
	Unit  string `json:"unit"`

	// Value is kgCO2e per unit. nil means the factor computes through its
	// gas breakdown instead.
	Value *float64 `json:"value"`

	Scope    string   `json:"scope,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`

	Region         string `json:"region,omitempty"`
	Country        string `json:"country,omitempty"`
	Sector         string `json:"sector,omitempty"`
	LifecycleStage string `json:"lifecycle_stage,omitempty"`
	ActivityType   string `json:"activity_type,omitempty"`

	Methodology   string `json:"methodology,omitempty"`
	GWPVersion    string `json:"gwp_version,omitempty"`
	Publisher     string `json:"publisher,omitempty"`
	SourceURL     string `json:"source_url,omitempty"`
	DocumentTitle string `json:"document_title,omitempty"`
	Page          string `json:"page,omitempty"`
	Table         string `json:"table,omitempty"`

	ValidFrom *time.Time `json:"valid_from,omitempty"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`

	Status        string `json:"status"`
	SupersedesKey string `json:"supersedes_key,omitempty"`

	LifecycleStatus string     `json:"lifecycle_status,omitempty"`
	ApprovedBy      string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	ReviewNotes     string     `json:"review_notes,omitempty"`

	// UncertaintyValue is a fraction (0.1 = 10%). nil means not assessed,
	// which the audit engine flags.
	UncertaintyValue *float64 `json:"uncertainty_value,omitempty"`
	UncertaintyType  string   `json:"uncertainty_type,omitempty"`

	GasBreakdown     GasBreakdown   `json:"gas_breakdown,omitempty"`
	ActivityIDFields DerivationSpec `json:"activity_id_fields,omitempty"`
	DataQuality      map[string]any `json:"data_quality,omitempty"`
	Meta             Meta           `json:"meta,omitempty"`

	Description string         `json:"description,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Computable reports whether the factor can produce a kgCO2e result: it needs
// either a direct value or at least one gas in its breakdown.
func (f *Factor) Computable() bool {
	return f.Value != nil || len(f.GasBreakdown.Gases) > 0
}

func isoDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

// Snapshot projects the auditable, semantic fields of a factor into the
// record that gets canonically hashed. Surrogate identifiers and mutable
// workflow bookkeeping (approval actor/timestamps, review notes) are
// excluded: editing those must not produce a new content version.
func Snapshot(f *Factor) map[string]any {
	var value any
	if f.Value != nil {
		value = *f.Value
	}
	var uncertainty any
	if f.UncertaintyValue != nil {
		uncertainty = *f.UncertaintyValue
	}
	return map[string]any{
		"key":                f.Key,
		"name":               f.Name,
		"unit":               f.Unit,
		"value":              value,
		"scope":              f.Scope,
		"category":           f.Category,
		"tags":               f.Tags,
		"region":             f.Region,
		"country":            f.Country,
		"sector":             f.Sector,
		"lifecycle_stage":    f.LifecycleStage,
		"activity_type":      f.ActivityType,
		"methodology":        f.Methodology,
		"gwp_version":        f.GWPVersion,
		"publisher":          f.Publisher,
		"source_url":         f.SourceURL,
		"document_title":     f.DocumentTitle,
		"page":               f.Page,
		"table":              f.Table,
		"valid_from":         isoDate(f.ValidFrom),
		"valid_to":           isoDate(f.ValidTo),
		"status":             f.Status,
		"lifecycle_status":   f.LifecycleStatus,
		"uncertainty_value":  uncertainty,
		"uncertainty_type":   f.UncertaintyType,
		"gas_breakdown":      f.GasBreakdown,
		"activity_id_fields": f.ActivityIDFields,
		"data_quality":       f.DataQuality,
		"meta":               f.Meta,
		"description":        f.Description,
		"extra":              f.Extra,
	}
}

// Package auditor re-validates a completed calculation run against
// present-day emission-factor state and produces severity-scored findings.
//
// Findings are observations, not errors: the audit always completes and
// always returns a report. Rows are checked against the factor record as it
// exists now, not against the version hash pinned in the run's ef_snapshot;
// a factor edited after the run can therefore drift the audit result away
// from what was actually calculated. That ambiguity comes from the
// methodology itself and is kept on purpose (see DESIGN.md).
package auditor

import (
	"context"
	"fmt"
	"time"

	"github.com/carbonledger/core/pkg/calc"
	"github.com/carbonledger/core/pkg/factor"
)

// Severity ranks a finding. CRITICAL > MAJOR > MINOR > INFO.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityMajor    Severity = "MAJOR"
	SeverityMinor    Severity = "MINOR"
	SeverityInfo     Severity = "INFO"
)

// Finding codes.
const (
	CodeEFMissing       = "EF_MISSING"
	CodeAsOfInvalid     = "ASOF_INVALID"
	CodeEFNotYetValid   = "EF_NOT_YET_VALID"
	CodeEFExpired       = "EF_EXPIRED"
	CodeEFNotActive     = "EF_NOT_ACTIVE"
	CodeEFNoReference   = "EF_NO_REFERENCE"
	CodeEFNoUncertainty = "EF_NO_UNCERTAINTY"
)

// Score penalties per severity, subtracted from 100 and floored at 0.
const (
	penaltyCritical = 25
	penaltyMajor    = 10
	penaltyMinor    = 3
	penaltyInfo     = 1
)

// Finding is one audit observation about a run row.
type Finding struct {
	Code           string         `json:"code"`
	Severity       Severity       `json:"severity"`
	Message        string         `json:"message"`
	Evidence       map[string]any `json:"evidence"`
	Recommendation string         `json:"recommendation"`
}

// Summary counts findings per severity.
type Summary struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
	Info     int `json:"info"`
}

// Report is the result of one audit invocation.
type Report struct {
	RunID    string    `json:"run_id"`
	Summary  Summary   `json:"summary"`
	Score    int       `json:"score"`
	Findings []Finding `json:"findings"`
}

// Engine audits runs against current factor state.
type Engine struct {
	factors calc.FactorLookup
}

// New creates an audit engine over the given factor lookup.
func New(factors calc.FactorLookup) *Engine {
	return &Engine{factors: factors}
}

// Audit checks every row of the run and returns the scored report. Only
// infrastructure failures (a broken factor lookup) return an error; rule
// violations become findings.
func (e *Engine) Audit(ctx context.Context, run *calc.Run) (*Report, error) {
	findings := []Finding{}

	for _, row := range run.Details.Rows {
		ef, err := e.factors.FactorByKey(ctx, run.OrgID, row.EFKey)
		if err != nil {
			return nil, fmt.Errorf("looking up factor %q: %w", row.EFKey, err)
		}
		if ef == nil {
			findings = append(findings, Finding{
				Code:     CodeEFMissing,
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("EF not found: %s", row.EFKey),
				Evidence: map[string]any{
					"activity_id": row.ActivityID,
					"ef_key":      row.EFKey,
				},
				Recommendation: "Fix EF reference or import the missing EF.",
			})
			continue
		}
		findings = append(findings, checkRow(row, ef)...)
	}

	report := &Report{
		RunID:    run.ID,
		Findings: findings,
		Score:    score(findings),
	}
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			report.Summary.Critical++
		case SeverityMajor:
			report.Summary.Major++
		case SeverityMinor:
			report.Summary.Minor++
		default:
			report.Summary.Info++
		}
	}
	return report, nil
}

// checkRow applies the data-quality rules for one row with its factor
// present.
func checkRow(row calc.Row, ef *factor.Factor) []Finding {
	var findings []Finding

	var asOf *time.Time
	if raw, ok := row.Inputs["_as_of"]; ok && raw != nil && raw != "" {
		s := fmt.Sprintf("%v", raw)
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			findings = append(findings, Finding{
				Code:     CodeAsOfInvalid,
				Severity: SeverityMinor,
				Message:  "Invalid _as_of date format; expected YYYY-MM-DD",
				Evidence: map[string]any{
					"ef_key": ef.Key,
					"_as_of": s,
				},
				Recommendation: "Store _as_of as ISO date.",
			})
		} else {
			asOf = &parsed
		}
	}

	if asOf != nil {
		if ef.ValidFrom != nil && ef.ValidFrom.After(*asOf) {
			findings = append(findings, Finding{
				Code:     CodeEFNotYetValid,
				Severity: SeverityMajor,
				Message:  "EF valid_from is after as-of date",
				Evidence: map[string]any{
					"ef_key":     ef.Key,
					"valid_from": ef.ValidFrom.Format("2006-01-02"),
					"as_of":      asOf.Format("2006-01-02"),
				},
				Recommendation: "Select EF valid for the as-of date.",
			})
		}
		if ef.ValidTo != nil && ef.ValidTo.Before(*asOf) {
			findings = append(findings, Finding{
				Code:     CodeEFExpired,
				Severity: SeverityMajor,
				Message:  "EF expired for as-of date",
				Evidence: map[string]any{
					"ef_key":   ef.Key,
					"valid_to": ef.ValidTo.Format("2006-01-02"),
					"as_of":    asOf.Format("2006-01-02"),
				},
				Recommendation: "Use a newer EF or correct the as-of date.",
			})
		}
	}

	if ef.Status != factor.StatusActive {
		findings = append(findings, Finding{
			Code:     CodeEFNotActive,
			Severity: SeverityMajor,
			Message:  "EF status is not active",
			Evidence: map[string]any{
				"ef_key": ef.Key,
				"status": ef.Status,
			},
			Recommendation: "Use an active EF; keep deprecated factors for history only.",
		})
	}

	if ef.Meta.Reference == "" {
		findings = append(findings, Finding{
			Code:     CodeEFNoReference,
			Severity: SeverityMajor,
			Message:  "EF missing reference metadata",
			Evidence: map[string]any{
				"ef_key": ef.Key,
			},
			Recommendation: "Populate EF meta.reference for auditability.",
		})
	}

	if ef.UncertaintyValue == nil {
		findings = append(findings, Finding{
			Code:     CodeEFNoUncertainty,
			Severity: SeverityMinor,
			Message:  "EF has no uncertainty_value",
			Evidence: map[string]any{
				"ef_key": ef.Key,
			},
			Recommendation: "Add uncertainty or document why not available.",
		})
	}

	return findings
}

func score(findings []Finding) int {
	s := 100
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			s -= penaltyCritical
		case SeverityMajor:
			s -= penaltyMajor
		case SeverityMinor:
			s -= penaltyMinor
		default:
			s -= penaltyInfo
		}
	}
	if s < 0 {
		s = 0
	}
	return s
}

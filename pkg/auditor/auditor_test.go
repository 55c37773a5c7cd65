package auditor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonledger/core/pkg/calc"
	"github.com/carbonledger/core/pkg/factor"
)

type fakeFactors map[string]*factor.Factor

func (f fakeFactors) FactorByKey(_ context.Context, _, key string) (*factor.Factor, error) {
	return f[key], nil
}

func floatPtr(f float64) *float64 { return &f }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func runWithRows(rows ...calc.Row) *calc.Run {
	return &calc.Run{ID: "run-1", OrgID: "org-1", Details: calc.Details{Rows: rows}}
}

func cleanFactor(key string) *factor.Factor {
	return &factor.Factor{
		OrgID:            "org-1",
		Key:              key,
		Status:           factor.StatusActive,
		Meta:             factor.Meta{Reference: "DEFRA 2023 table 12"},
		UncertaintyValue: floatPtr(0.1),
	}
}

func codes(findings []Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Code
	}
	return out
}

func TestAuditCleanRunScores100(t *testing.T) {
	e := New(fakeFactors{"diesel": cleanFactor("diesel")})
	report, err := e.Audit(context.Background(), runWithRows(
		calc.Row{ActivityID: "a1", EFKey: "diesel", Inputs: map[string]any{"amount": 1}},
	))
	require.NoError(t, err)
	assert.Equal(t, 100, report.Score)
	assert.Empty(t, report.Findings)
	assert.Equal(t, Summary{}, report.Summary)
}

func TestAuditMissingFactorIsCritical(t *testing.T) {
	e := New(fakeFactors{})
	report, err := e.Audit(context.Background(), runWithRows(
		calc.Row{ActivityID: "a1", EFKey: "ghost"},
	))
	require.NoError(t, err)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, CodeEFMissing, report.Findings[0].Code)
	assert.Equal(t, SeverityCritical, report.Findings[0].Severity)
	assert.Equal(t, 1, report.Summary.Critical)
	// One CRITICAL caps the score at 75; remaining checks are skipped.
	assert.Equal(t, 75, report.Score)
}

func TestAuditValidityWindow(t *testing.T) {
	ef := cleanFactor("grid")
	ef.ValidFrom = date(2024, 1, 1)
	ef.ValidTo = date(2024, 12, 31)
	e := New(fakeFactors{"grid": ef})

	t.Run("not yet valid", func(t *testing.T) {
		report, err := e.Audit(context.Background(), runWithRows(
			calc.Row{EFKey: "grid", Inputs: map[string]any{"_as_of": "2023-06-01"}},
		))
		require.NoError(t, err)
		assert.Contains(t, codes(report.Findings), CodeEFNotYetValid)
		assert.Equal(t, 90, report.Score)
	})

	t.Run("expired", func(t *testing.T) {
		report, err := e.Audit(context.Background(), runWithRows(
			calc.Row{EFKey: "grid", Inputs: map[string]any{"_as_of": "2025-06-01"}},
		))
		require.NoError(t, err)
		assert.Contains(t, codes(report.Findings), CodeEFExpired)
	})

	t.Run("inside window", func(t *testing.T) {
		report, err := e.Audit(context.Background(), runWithRows(
			calc.Row{EFKey: "grid", Inputs: map[string]any{"_as_of": "2024-06-01"}},
		))
		require.NoError(t, err)
		assert.Empty(t, report.Findings)
	})

	t.Run("malformed as_of is minor, window checks skipped", func(t *testing.T) {
		report, err := e.Audit(context.Background(), runWithRows(
			calc.Row{EFKey: "grid", Inputs: map[string]any{"_as_of": "June 1st 2024"}},
		))
		require.NoError(t, err)
		assert.Equal(t, []string{CodeAsOfInvalid}, codes(report.Findings))
		assert.Equal(t, 97, report.Score)
	})
}

func TestAuditDataQualityRules(t *testing.T) {
	ef := &factor.Factor{OrgID: "org-1", Key: "old", Status: factor.StatusDeprecated}
	e := New(fakeFactors{"old": ef})

	report, err := e.Audit(context.Background(), runWithRows(calc.Row{EFKey: "old"}))
	require.NoError(t, err)

	got := codes(report.Findings)
	assert.Contains(t, got, CodeEFNotActive)
	assert.Contains(t, got, CodeEFNoReference)
	assert.Contains(t, got, CodeEFNoUncertainty)
	// 100 - 10 - 10 - 3
	assert.Equal(t, 77, report.Score)
	assert.Equal(t, Summary{Major: 2, Minor: 1}, report.Summary)
}

func TestAuditScoreFloorsAtZero(t *testing.T) {
	e := New(fakeFactors{})
	rows := make([]calc.Row, 6)
	for i := range rows {
		rows[i] = calc.Row{EFKey: "ghost"}
	}
	report, err := e.Audit(context.Background(), runWithRows(rows...))
	require.NoError(t, err)
	// 6 criticals would be -150; floor holds at 0.
	assert.Equal(t, 0, report.Score)
	assert.Equal(t, 6, report.Summary.Critical)
}

func TestAuditScoreMonotonicallyNonIncreasing(t *testing.T) {
	ef := cleanFactor("diesel")
	deprecated := cleanFactor("old")
	deprecated.Status = factor.StatusDeprecated
	e := New(fakeFactors{"diesel": ef, "old": deprecated})

	prev := 101
	rows := []calc.Row{}
	for i := 0; i < 12; i++ {
		rows = append(rows, calc.Row{EFKey: "old"})
		report, err := e.Audit(context.Background(), runWithRows(rows...))
		require.NoError(t, err)
		assert.LessOrEqual(t, report.Score, prev)
		assert.GreaterOrEqual(t, report.Score, 0)
		prev = report.Score
	}
}

func TestAuditAlwaysReturnsReport(t *testing.T) {
	e := New(fakeFactors{})
	report, err := e.Audit(context.Background(), runWithRows())
	require.NoError(t, err)
	assert.Equal(t, 100, report.Score)
	assert.NotNil(t, report.Findings)
}

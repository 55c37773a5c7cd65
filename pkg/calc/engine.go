package calc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carbonledger/core/pkg/canonicalize"
	"github.com/carbonledger/core/pkg/factor"
	"github.com/carbonledger/core/pkg/gwp"
)

var (
	// ErrUnknownFactor reports an activity referencing a factor key that
	// does not exist for the org.
	ErrUnknownFactor = errors.New("emission factor not found")
	// ErrUnknownActivity reports a run request naming a missing activity.
	ErrUnknownActivity = errors.New("activity not found")
	// ErrNotComputable reports a factor with neither a direct value nor a
	// usable gas breakdown.
	ErrNotComputable = errors.New("factor has no value and no usable gas breakdown")
)

// Calculation methods recorded in row traces.
const (
	MethodDirectValue  = "direct_value"
	MethodGasBreakdown = "gas_breakdown"
)

// FactorLookup resolves a factor by (org, key). A nil factor with a nil
// error means not found.
type FactorLookup interface {
	FactorByKey(ctx context.Context, orgID, key string) (*factor.Factor, error)
}

// ActivityLookup resolves an activity by (org, id). A nil activity with a
// nil error means not found.
type ActivityLookup interface {
	ActivityByID(ctx context.Context, orgID, id string) (*Activity, error)
}

// RowTrace records how one row's kgCO2e was computed.
type RowTrace struct {
	Method        string        `json:"method"`
	Quantity      float64       `json:"qty"`
	EFValue       *float64      `json:"ef_value,omitempty"`
	PerUnitCO2e   *float64      `json:"per_unit_co2e,omitempty"`
	QuantityTrace QuantityTrace `json:"qtrace"`
	EFKey         string        `json:"ef_key"`
	Meta          factor.Meta   `json:"meta"`
	EFPayloadHash string        `json:"ef_payload_hash"`
}

// Engine computes per-activity and aggregate CO2e quantities.
type Engine struct {
	factors    FactorLookup
	activities ActivityLookup
	logger     *slog.Logger
	clock      func() time.Time
	newID      func() string
}

// NewEngine creates a calculation engine over the given lookups.
func NewEngine(factors FactorLookup, activities ActivityLookup) *Engine {
	return &Engine{
		factors:    factors,
		activities: activities,
		logger:     slog.Default().With("component", "calc"),
		clock:      time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// WithLogger overrides the engine logger.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	e.logger = l
	return e
}

// WithClock overrides the clock for testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// ComputeActivity computes kgCO2e for a single activity: derive the
// quantity per the factor's spec, hash the factor's auditable snapshot, then
// apply either the direct value or the GWP-weighted gas breakdown.
func (e *Engine) ComputeActivity(ctx context.Context, a *Activity) (float64, RowTrace, string, error) {
	ef, err := e.factors.FactorByKey(ctx, a.OrgID, a.EFKey)
	if err != nil {
		return 0, RowTrace{}, "", fmt.Errorf("looking up factor %q: %w", a.EFKey, err)
	}
	if ef == nil {
		return 0, RowTrace{}, "", fmt.Errorf("%w: %s", ErrUnknownFactor, a.EFKey)
	}

	qty, qtrace, err := DeriveQuantity(ef.ActivityIDFields, a.Inputs, ef.Key)
	if err != nil {
		return 0, RowTrace{}, "", err
	}

	hash, err := canonicalize.Hash(factor.Snapshot(ef))
	if err != nil {
		return 0, RowTrace{}, "", fmt.Errorf("hashing factor %q: %w", ef.Key, err)
	}

	trace := RowTrace{
		Quantity:      qty,
		QuantityTrace: qtrace,
		EFKey:         ef.Key,
		Meta:          ef.Meta,
		EFPayloadHash: hash,
	}

	if ef.Value != nil {
		v := *ef.Value
		trace.Method = MethodDirectValue
		trace.EFValue = &v
		return qty * v, trace, hash, nil
	}

	if len(ef.GasBreakdown.Gases) == 0 {
		return 0, RowTrace{}, "", fmt.Errorf("%w: %s", ErrNotComputable, ef.Key)
	}

	perUnit := perUnitCO2e(ef.GasBreakdown, ef.GWPVersion)
	trace.Method = MethodGasBreakdown
	trace.PerUnitCO2e = &perUnit
	return qty * perUnit, trace, hash, nil
}

// perUnitCO2e folds a gas breakdown through the resolved GWP table. Gas
// symbols absent from the table contribute zero.
func perUnitCO2e(gb factor.GasBreakdown, gwpVersion string) float64 {
	table := gwp.Resolve(gwpVersion)
	perUnit := 0.0
	for gas, amount := range gb.Gases {
		if mult, ok := table[strings.ToUpper(strings.TrimSpace(gas))]; ok {
			perUnit += amount * mult
		}
	}
	return perUnit
}

// ComputeRun computes a run over the given activity ids, in order. Any
// single failure aborts the whole run; no partial result is produced. The
// aggregate total is the exact sum of row values, and ef_snapshot keeps the
// last hash seen per factor key.
func (e *Engine) ComputeRun(ctx context.Context, orgID string, activityIDs []string, runType RunType) (*Run, error) {
	if !ValidRunType(runType) {
		return nil, fmt.Errorf("unknown run type %q", runType)
	}

	total := 0.0
	rows := make([]Row, 0, len(activityIDs))
	efSnapshot := make(map[string]string)

	for _, id := range activityIDs {
		a, err := e.activities.ActivityByID(ctx, orgID, id)
		if err != nil {
			return nil, fmt.Errorf("looking up activity %q: %w", id, err)
		}
		if a == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownActivity, id)
		}

		kg, trace, efHash, err := e.ComputeActivity(ctx, a)
		if err != nil {
			return nil, err
		}

		efSnapshot[a.EFKey] = efHash
		total += kg
		rows = append(rows, Row{
			ActivityID:   a.ID,
			ActivityName: a.Name,
			EFKey:        a.EFKey,
			Inputs:       a.Inputs,
			KgCO2e:       kg,
			Trace:        trace,
		})
	}

	run := &Run{
		ID:           e.newID(),
		OrgID:        orgID,
		Type:         runType,
		TotalKgCO2e:  total,
		TotalTCO2e:   total / 1000.0,
		Details:      Details{Rows: rows},
		EFSnapshot:   efSnapshot,
		ReviewStatus: ReviewDraft,
		CreatedAt:    e.clock(),
	}

	e.logger.Debug("run computed",
		"run_id", run.ID,
		"run_type", string(runType),
		"rows", len(rows),
		"total_kgco2e", total,
	)
	return run, nil
}

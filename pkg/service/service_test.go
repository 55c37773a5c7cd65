package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonledger/core/pkg/calc"
	"github.com/carbonledger/core/pkg/credit"
	"github.com/carbonledger/core/pkg/factor"
	"github.com/carbonledger/core/pkg/provenance"
	"github.com/carbonledger/core/pkg/store"
)

const testOrg = "org-test"

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := New(mem, provenance.NewKeyProvider("", "")).
		WithClock(func() time.Time {
			return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		})
	return svc, mem
}

func seedAndActivities(t *testing.T, svc *Service) []string {
	t.Helper()
	ctx := context.Background()

	n, err := svc.SeedFactors(ctx, testOrg, "importer")
	require.NoError(t, err)
	require.Equal(t, 4, n)

	a1, err := svc.CreateActivity(ctx, &calc.Activity{
		OrgID:  testOrg,
		Name:   "Generator diesel",
		EFKey:  "diesel_stationary",
		Inputs: map[string]any{"litres": 100.0},
	})
	require.NoError(t, err)

	a2, err := svc.CreateActivity(ctx, &calc.Activity{
		OrgID:  testOrg,
		Name:   "Outbound freight",
		EFKey:  "freight_road_ton_km",
		Inputs: map[string]any{"distance_km": 250.0, "payload_ton": 2.0},
	})
	require.NoError(t, err)

	return []string{a1.ID, a2.ID}
}

func TestServicePipelineEndToEnd(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	ids := seedAndActivities(t, svc)

	run, err := svc.RunCalculation(ctx, testOrg, ids, calc.RunTypeCFO)
	require.NoError(t, err)
	require.Len(t, run.Details.Rows, 2)

	// 100 litres * 2.7078 plus 250 km * 2 t * default load factor 1.0
	// * 0.1204.
	wantKg := 100.0*2.7078 + 250.0*2.0*1.0*0.1204
	assert.InDelta(t, wantKg, run.TotalKgCO2e, 1e-9)
	assert.InDelta(t, wantKg/1000.0, run.TotalTCO2e, 1e-12)
	assert.Equal(t, calc.ReviewDraft, run.ReviewStatus)
	assert.Len(t, run.EFSnapshot, 2)

	_, err = svc.ReviewRun(ctx, testOrg, run.ID, "reviewer", "checked inputs")
	require.NoError(t, err)
	_, err = svc.ApproveRun(ctx, testOrg, run.ID, "approver", "ok")
	require.NoError(t, err)

	sig, err := svc.SignRun(ctx, testOrg, run.ID, "approver")
	require.NoError(t, err)
	assert.Equal(t, provenance.Algo, sig.Algo)

	v, err := svc.VerifyRun(ctx, testOrg, run.ID)
	require.NoError(t, err)
	assert.True(t, v.OK)
	assert.True(t, v.HashMatches)
	assert.True(t, v.SignatureValid)
	assert.Equal(t, "approver", v.SignedBy)

	report, err := svc.AuditRun(ctx, testOrg, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, report.Score)
	assert.Empty(t, report.Findings)

	actions := make(map[string]int)
	for _, ev := range mem.Events() {
		actions[ev.Action]++
	}
	assert.Equal(t, 4, actions[EventFactorUpserted])
	assert.Equal(t, 2, actions[EventActivityCreated])
	assert.Equal(t, 1, actions[EventRunCreated])
	assert.Equal(t, 1, actions[EventRunReviewed])
	assert.Equal(t, 1, actions[EventRunApproved])
	assert.Equal(t, 1, actions[EventRunSigned])
	assert.Equal(t, 1, actions[EventRunAudited])
}

func TestServiceSignRequiresApproval(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ids := seedAndActivities(t, svc)

	run, err := svc.RunCalculation(ctx, testOrg, ids, calc.RunTypeCFP)
	require.NoError(t, err)

	_, err = svc.SignRun(ctx, testOrg, run.ID, "nobody")
	assert.ErrorIs(t, err, provenance.ErrNotApproved)

	_, err = svc.ReviewRun(ctx, testOrg, run.ID, "reviewer", "")
	require.NoError(t, err)
	_, err = svc.SignRun(ctx, testOrg, run.ID, "nobody")
	assert.ErrorIs(t, err, provenance.ErrNotApproved)
}

func TestServiceVerifyDetectsTamper(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	ids := seedAndActivities(t, svc)

	run, err := svc.RunCalculation(ctx, testOrg, ids, calc.RunTypeCFO)
	require.NoError(t, err)
	_, err = svc.ReviewRun(ctx, testOrg, run.ID, "r", "")
	require.NoError(t, err)
	_, err = svc.ApproveRun(ctx, testOrg, run.ID, "a", "")
	require.NoError(t, err)
	_, err = svc.SignRun(ctx, testOrg, run.ID, "a")
	require.NoError(t, err)

	// Tamper with the stored total after signing.
	stored, err := mem.RunByID(ctx, testOrg, run.ID)
	require.NoError(t, err)
	stored.TotalTCO2e += 1.0
	require.NoError(t, mem.UpdateRunReview(ctx, stored))

	v, err := svc.VerifyRun(ctx, testOrg, run.ID)
	require.NoError(t, err)
	assert.False(t, v.OK)
	assert.False(t, v.HashMatches)
	assert.True(t, v.SignatureValid) // signature still covers the old hash
}

func TestServiceUpsertFactorRecordsVersions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	val := 0.5
	f := &factor.Factor{
		OrgID: testOrg,
		Key:   "grid_electricity",
		Name:  "Grid electricity",
		Unit:  "kWh",
		Value: &val,
	}
	hash1, err := svc.UpsertFactor(ctx, f, "alice", "initial load", time.Time{})
	require.NoError(t, err)

	val2 := 0.45
	f.Value = &val2
	hash2, err := svc.UpsertFactor(ctx, f, "alice", "annual update", time.Time{})
	require.NoError(t, err)
	assert.NotEqual(t, hash1, hash2)

	versions, err := svc.FactorHistory(ctx, testOrg, "grid_electricity")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Nil(t, versions[0].EffectiveTo)
	require.NotNil(t, versions[1].EffectiveTo)
}

func TestServiceUpsertFactorRejectsBadDerivationSpec(t *testing.T) {
	svc, _ := newTestService(t)

	val := 1.0
	f := &factor.Factor{
		OrgID: testOrg,
		Key:   "bad_spec",
		Unit:  "unit",
		Value: &val,
		ActivityIDFields: factor.DerivationSpec{
			Formula: &factor.FormulaSpec{}, // missing expression
		},
	}
	_, err := svc.UpsertFactor(context.Background(), f, "alice", "", time.Time{})
	require.Error(t, err)
}

func TestServiceComputeCredits(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SeedFactors(ctx, testOrg, "importer")
	require.NoError(t, err)

	// Baseline burns more diesel than the monitored project period.
	makeRun := func(litres float64) string {
		a, err := svc.CreateActivity(ctx, &calc.Activity{
			OrgID:  testOrg,
			EFKey:  "diesel_stationary",
			Inputs: map[string]any{"litres": litres},
		})
		require.NoError(t, err)
		run, err := svc.RunCalculation(ctx, testOrg, []string{a.ID}, calc.RunTypeCredit)
		require.NoError(t, err)
		return run.ID
	}
	baselineID := makeRun(10000.0)
	projectID := makeRun(4000.0)

	result, err := svc.ComputeCredits(ctx, testOrg, &credit.Project{
		OrgID:       testOrg,
		ProjectCode: "PRJ-1",
		BufferPct:   0.1,
	}, baselineID, projectID, "")
	require.NoError(t, err)

	gross := (10000.0 - 4000.0) * 2.7078 / 1000.0
	assert.InDelta(t, gross, result.GrossTCO2e, 1e-9)
	assert.InDelta(t, gross*0.9, result.NetTCO2e, 1e-9)
}

func TestServiceComputeCreditsRejectsWrongRunType(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	ids := seedAndActivities(t, svc)

	run, err := svc.RunCalculation(ctx, testOrg, ids, calc.RunTypeCFO)
	require.NoError(t, err)

	_, err = svc.ComputeCredits(ctx, testOrg, &credit.Project{}, run.ID, run.ID, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CREDIT")
}

func TestServiceCreateActivityUnknownFactor(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateActivity(context.Background(), &calc.Activity{
		OrgID: testOrg,
		EFKey: "does_not_exist",
	})
	assert.ErrorIs(t, err, calc.ErrUnknownFactor)
}

// Package service orchestrates the calculation pipeline: factor upserts with
// version recording, activity intake, run computation, the review workflow,
// signing, verification and audits. Every state change appends an audit
// event; event append failures are logged, never fatal.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carbonledger/core/pkg/auditor"
	"github.com/carbonledger/core/pkg/calc"
	"github.com/carbonledger/core/pkg/credit"
	"github.com/carbonledger/core/pkg/factor"
	"github.com/carbonledger/core/pkg/ledger"
	"github.com/carbonledger/core/pkg/observability"
	"github.com/carbonledger/core/pkg/provenance"
	"github.com/carbonledger/core/pkg/seed"
	"github.com/carbonledger/core/pkg/store"
)

// Audit event actions.
const (
	EventFactorUpserted  = "EF_UPSERTED"
	EventActivityCreated = "ACTIVITY_CREATED"
	EventRunCreated      = "RUN_CREATED"
	EventRunReviewed     = "RUN_REVIEWED"
	EventRunApproved     = "RUN_APPROVED"
	EventRunSigned       = "RUN_SIGNED"
	EventRunAudited      = "RUN_AUDITED"
)

// Verification is the outcome of checking a stored signature against the
// run's recomputed canonical hash.
type Verification struct {
	RunID          string    `json:"run_id"`
	Algo           string    `json:"algo"`
	RunHash        string    `json:"run_hash"`
	HashMatches    bool      `json:"hash_matches"`
	SignatureValid bool      `json:"signature_valid"`
	OK             bool      `json:"ok"`
	SignedBy       string    `json:"signed_by,omitempty"`
	SignedAt       time.Time `json:"signed_at"`
}

// Service wires the domain engines over a Store.
type Service struct {
	store   store.Store
	ledger  *ledger.Ledger
	engine  *calc.Engine
	auditor *auditor.Engine
	signer  *provenance.Signer
	obs     *observability.Provider
	log     *slog.Logger
	clock   func() time.Time
}

// New builds a Service over the given store and signing keys.
func New(st store.Store, keys *provenance.KeyProvider) *Service {
	return &Service{
		store:   st,
		ledger:  ledger.New(st),
		engine:  calc.NewEngine(st, st),
		auditor: auditor.New(st),
		signer:  provenance.NewSigner(keys),
		obs:     &observability.Provider{},
		log:     slog.Default(),
		clock:   time.Now,
	}
}

// WithLogger sets the logger on the service and its engine.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.log = l
	s.engine = s.engine.WithLogger(l)
	return s
}

// WithObservability sets the telemetry provider.
func (s *Service) WithObservability(p *observability.Provider) *Service {
	if p != nil {
		s.obs = p
	}
	return s
}

// WithClock overrides wall-clock time for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	s.ledger = s.ledger.WithClock(clock)
	s.engine = s.engine.WithClock(clock)
	s.signer = s.signer.WithClock(clock)
	return s
}

// UpsertFactor validates and stores a factor, then records a content version
// for it. Returns the canonical hash of the version payload.
func (s *Service) UpsertFactor(ctx context.Context, f *factor.Factor, changedBy, changeReason string, effectiveFrom time.Time) (string, error) {
	if f.Key == "" {
		return "", ledger.ErrEmptyKey
	}
	if !f.ActivityIDFields.IsZero() {
		if err := factor.ValidateDerivationSpec(f.ActivityIDFields); err != nil {
			return "", fmt.Errorf("derivation spec for %q: %w", f.Key, err)
		}
	}
	if f.Status == "" {
		f.Status = factor.StatusActive
	}

	if err := s.store.UpsertFactor(ctx, f); err != nil {
		return "", err
	}
	hash, err := s.ledger.Record(ctx, f.OrgID, f.Key, factor.Snapshot(f), changedBy, changeReason, effectiveFrom)
	if err != nil {
		return "", fmt.Errorf("recording version for %q: %w", f.Key, err)
	}

	s.emit(ctx, f.OrgID, changedBy, EventFactorUpserted, map[string]any{
		"ef_key":       f.Key,
		"payload_hash": hash,
	})
	return hash, nil
}

// SeedFactors loads the built-in demo factor set for an org.
func (s *Service) SeedFactors(ctx context.Context, orgID, changedBy string) (int, error) {
	n := 0
	for _, f := range seed.Factors(orgID) {
		if _, err := s.UpsertFactor(ctx, f, changedBy, "seed import", time.Time{}); err != nil {
			return n, fmt.Errorf("seeding %q: %w", f.Key, err)
		}
		n++
	}
	return n, nil
}

// CreateActivity stores an activity after checking its factor exists.
func (s *Service) CreateActivity(ctx context.Context, a *calc.Activity) (*calc.Activity, error) {
	ef, err := s.store.FactorByKey(ctx, a.OrgID, a.EFKey)
	if err != nil {
		return nil, err
	}
	if ef == nil {
		return nil, fmt.Errorf("%w: %s", calc.ErrUnknownFactor, a.EFKey)
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock().UTC()
	}
	if err := s.store.PutActivity(ctx, a); err != nil {
		return nil, err
	}

	s.emit(ctx, a.OrgID, "", EventActivityCreated, map[string]any{
		"activity_id": a.ID,
		"ef_key":      a.EFKey,
	})
	return a, nil
}

// RunCalculation computes and persists a run over the given activities.
func (s *Service) RunCalculation(ctx context.Context, orgID string, activityIDs []string, runType calc.RunType) (*calc.Run, error) {
	ctx, done := s.obs.TrackOperation(ctx, "compute_run",
		attribute.String("run_type", string(runType)))

	run, err := s.engine.ComputeRun(ctx, orgID, activityIDs, runType)
	if err != nil {
		done(err)
		return nil, err
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		done(err)
		return nil, fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	done(nil)
	s.obs.RecordRun(ctx, attribute.String("run_type", string(runType)))

	s.emit(ctx, orgID, "", EventRunCreated, map[string]any{
		"run_id":      run.ID,
		"run_type":    run.Type,
		"total_tco2e": run.TotalTCO2e,
	})
	return run, nil
}

// ReviewRun moves a draft run to REVIEWED.
func (s *Service) ReviewRun(ctx context.Context, orgID, runID, by, notes string) (*calc.Run, error) {
	run, err := s.store.RunByID(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	if err := run.Review(by, notes, s.clock().UTC()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRunReview(ctx, run); err != nil {
		return nil, err
	}
	s.emit(ctx, orgID, by, EventRunReviewed, map[string]any{"run_id": runID})
	return run, nil
}

// ApproveRun moves a reviewed run to APPROVED.
func (s *Service) ApproveRun(ctx context.Context, orgID, runID, by, notes string) (*calc.Run, error) {
	run, err := s.store.RunByID(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	if err := run.Approve(by, notes, s.clock().UTC()); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRunReview(ctx, run); err != nil {
		return nil, err
	}
	s.emit(ctx, orgID, by, EventRunApproved, map[string]any{"run_id": runID})
	return run, nil
}

// SignRun signs an approved run and appends the signature.
func (s *Service) SignRun(ctx context.Context, orgID, runID, signedBy string) (*provenance.Signature, error) {
	run, err := s.store.RunByID(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	sig, err := s.signer.SignRun(run, signedBy)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendSignature(ctx, sig); err != nil {
		return nil, fmt.Errorf("storing signature for run %s: %w", runID, err)
	}
	s.emit(ctx, orgID, signedBy, EventRunSigned, map[string]any{
		"run_id":   runID,
		"run_hash": sig.RunHash,
	})
	return sig, nil
}

// VerifyRun recomputes the run's canonical hash, compares it to the latest
// stored signature's hash, and checks the Ed25519 signature. OK requires
// both to hold.
func (s *Service) VerifyRun(ctx context.Context, orgID, runID string) (*Verification, error) {
	run, err := s.store.RunByID(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}
	sig, err := s.store.LatestSignature(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}

	hash, err := provenance.RunHash(run)
	if err != nil {
		return nil, fmt.Errorf("hashing run %s: %w", runID, err)
	}

	v := &Verification{
		RunID:    runID,
		Algo:     sig.Algo,
		RunHash:  hash,
		SignedBy: sig.SignedBy,
		SignedAt: sig.SignedAt,
	}
	v.HashMatches = hash == sig.RunHash
	v.SignatureValid = provenance.Verify(sig.RunHash, sig.SignatureB64, sig.PublicKeyPEM)
	v.OK = v.HashMatches && v.SignatureValid
	return v, nil
}

// AuditRun runs the compliance audit over a stored run.
func (s *Service) AuditRun(ctx context.Context, orgID, runID string) (*auditor.Report, error) {
	run, err := s.store.RunByID(ctx, orgID, runID)
	if err != nil {
		return nil, err
	}

	ctx, done := s.obs.TrackOperation(ctx, "audit_run",
		attribute.String("run_id", runID))
	report, err := s.auditor.Audit(ctx, run)
	done(err)
	if err != nil {
		return nil, err
	}
	s.obs.RecordFindings(ctx, len(report.Findings))

	s.emit(ctx, orgID, "", EventRunAudited, map[string]any{
		"run_id": runID,
		"score":  report.Score,
	})
	return report, nil
}

// ComputeCredits derives issuable credits for a project from three stored
// CREDIT runs: baseline, monitored project emissions and leakage. Leakage
// may be empty when the methodology does not track it.
func (s *Service) ComputeCredits(ctx context.Context, orgID string, p *credit.Project, baselineRunID, projectRunID, leakageRunID string) (*credit.Result, error) {
	baseline, err := s.creditRunTotal(ctx, orgID, baselineRunID)
	if err != nil {
		return nil, err
	}
	monitored, err := s.creditRunTotal(ctx, orgID, projectRunID)
	if err != nil {
		return nil, err
	}
	p.BaselineTCO2e = baseline
	p.ProjectTCO2e = monitored
	if leakageRunID != "" {
		leakage, err := s.creditRunTotal(ctx, orgID, leakageRunID)
		if err != nil {
			return nil, err
		}
		p.LeakageTCO2e = leakage
	}

	result := credit.Compute(p)
	return &result, nil
}

func (s *Service) creditRunTotal(ctx context.Context, orgID, runID string) (float64, error) {
	run, err := s.store.RunByID(ctx, orgID, runID)
	if err != nil {
		return 0, err
	}
	if run.Type != calc.RunTypeCredit {
		return 0, fmt.Errorf("run %s is %s, want %s", runID, run.Type, calc.RunTypeCredit)
	}
	return run.TotalTCO2e, nil
}

// FactorHistory lists the content versions recorded for a factor key,
// newest first.
func (s *Service) FactorHistory(ctx context.Context, orgID, efKey string) ([]*ledger.Version, error) {
	return s.ledger.History(ctx, orgID, efKey)
}

// Run fetches a stored run.
func (s *Service) Run(ctx context.Context, orgID, runID string) (*calc.Run, error) {
	return s.store.RunByID(ctx, orgID, runID)
}

func (s *Service) emit(ctx context.Context, orgID, actor, action string, payload map[string]any) {
	ev := &store.AuditEvent{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Actor:     actor,
		Action:    action,
		Payload:   payload,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.store.AppendEvent(ctx, ev); err != nil {
		s.log.Warn("audit event append failed", "action", action, "error", err)
	}
}

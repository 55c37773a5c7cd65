// Package store defines the persistence ports the calculation core consumes
// and provides two backends: an in-memory store for tests and demos, and a
// database/sql store that runs on SQLite or Postgres.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/carbonledger/core/pkg/calc"
	"github.com/carbonledger/core/pkg/factor"
	"github.com/carbonledger/core/pkg/ledger"
	"github.com/carbonledger/core/pkg/provenance"
)

// ErrNotFound reports a missing record where absence is an error to the
// caller (run lookups, signature lookups).
var ErrNotFound = errors.New("record not found")

// AuditEvent is one fire-and-forget log entry of an operator action. The
// core appends these; it never reads them back.
type AuditEvent struct {
	ID        string         `json:"id"`
	OrgID     string         `json:"org_id"`
	Actor     string         `json:"actor,omitempty"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// FactorStore persists emission factors. Factors are upserted, never
// deleted; supersession happens through the version ledger.
type FactorStore interface {
	UpsertFactor(ctx context.Context, f *factor.Factor) error
	// FactorByKey returns nil, nil when the key does not exist.
	FactorByKey(ctx context.Context, orgID, key string) (*factor.Factor, error)
	ListFactors(ctx context.Context, orgID string) ([]*factor.Factor, error)
}

// ActivityStore persists activity records.
type ActivityStore interface {
	PutActivity(ctx context.Context, a *calc.Activity) error
	// ActivityByID returns nil, nil when the id does not exist.
	ActivityByID(ctx context.Context, orgID, id string) (*calc.Activity, error)
	DeleteActivity(ctx context.Context, orgID, id string) error
	ListActivities(ctx context.Context, orgID string) ([]*calc.Activity, error)
}

// RunStore persists calculation runs. SaveRun stores the complete run (rows,
// totals, snapshot) as one durable unit.
type RunStore interface {
	SaveRun(ctx context.Context, run *calc.Run) error
	RunByID(ctx context.Context, orgID, id string) (*calc.Run, error)
	UpdateRunReview(ctx context.Context, run *calc.Run) error
	ListRuns(ctx context.Context, orgID string) ([]*calc.Run, error)
}

// SignatureStore persists append-only run signatures.
type SignatureStore interface {
	AppendSignature(ctx context.Context, sig *provenance.Signature) error
	// LatestSignature returns ErrNotFound when the run has never been
	// signed.
	LatestSignature(ctx context.Context, orgID, runID string) (*provenance.Signature, error)
}

// AuditEventStore appends operator-action log entries.
type AuditEventStore interface {
	AppendEvent(ctx context.Context, ev *AuditEvent) error
}

// Store is the full persistence surface the service layer needs.
type Store interface {
	FactorStore
	ActivityStore
	RunStore
	SignatureStore
	AuditEventStore
	ledger.VersionStore
}

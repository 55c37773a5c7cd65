// Package ledger maintains the append-only version history of emission
// factors.
//
// For each (org, ef_key) at most one version row is open (effective_to is
// nil) at any time. Recording a new version closes the current open row at
// the new row's effective date and appends the new row; closed rows are
// never mutated again. The close-and-append sequence is serialized per key
// so concurrent upserts of the same factor cannot both observe the same open
// row.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carbonledger/core/pkg/canonicalize"
)

// Version is one append-only ledger entry for a factor's content snapshot.
type Version struct {
	ID     string `json:"id"`
	OrgID  string `json:"org_id"`
	EFKey  string `json:"ef_key"`

	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`

	Payload     map[string]any `json:"payload"`
	PayloadHash string         `json:"payload_hash"`

	ChangedBy    string    `json:"changed_by,omitempty"`
	ChangeReason string    `json:"change_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// VersionStore is the persistence port the ledger drives.
type VersionStore interface {
	// OpenVersion returns the current open version for (org, key), or nil
	// if none exists.
	OpenVersion(ctx context.Context, orgID, efKey string) (*Version, error)
	// CloseVersion sets effective_to on a previously open version.
	CloseVersion(ctx context.Context, versionID string, effectiveTo time.Time) error
	// AppendVersion appends a new version row.
	AppendVersion(ctx context.Context, v *Version) error
	// VersionsByKey lists all versions for (org, key), newest first.
	VersionsByKey(ctx context.Context, orgID, efKey string) ([]*Version, error)
}

// ErrEmptyKey reports a record call without a factor key.
var ErrEmptyKey = errors.New("ef key must not be empty")

// Ledger serializes version writes per factor key over a VersionStore.
type Ledger struct {
	store VersionStore
	clock func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a ledger over the given store.
func New(store VersionStore) *Ledger {
	return &Ledger{
		store: store,
		clock: time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

// WithClock overrides the clock for testing.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// keyLock returns the mutex guarding one (org, key) pair. Locks are cheap
// and never released back; the key space is bounded by the factor catalog.
func (l *Ledger) keyLock(orgID, efKey string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := orgID + "\x00" + efKey
	m, ok := l.locks[k]
	if !ok {
		m = &sync.Mutex{}
		l.locks[k] = m
	}
	return m
}

// Record closes the current open version for (org, efKey), if any, and
// appends a new open version holding the payload and its canonical content
// hash. A zero effectiveFrom defaults to today (UTC, day precision).
// Returns the content hash.
func (l *Ledger) Record(ctx context.Context, orgID, efKey string, payload map[string]any, changedBy, changeReason string, effectiveFrom time.Time) (string, error) {
	if efKey == "" {
		return "", ErrEmptyKey
	}
	if effectiveFrom.IsZero() {
		effectiveFrom = l.clock().UTC().Truncate(24 * time.Hour)
	}

	hash, err := canonicalize.Hash(payload)
	if err != nil {
		return "", fmt.Errorf("hashing version payload for %q: %w", efKey, err)
	}

	lock := l.keyLock(orgID, efKey)
	lock.Lock()
	defer lock.Unlock()

	prev, err := l.store.OpenVersion(ctx, orgID, efKey)
	if err != nil {
		return "", fmt.Errorf("finding open version for %q: %w", efKey, err)
	}
	if prev != nil {
		if err := l.store.CloseVersion(ctx, prev.ID, effectiveFrom); err != nil {
			return "", fmt.Errorf("closing version %s: %w", prev.ID, err)
		}
	}

	v := &Version{
		ID:            uuid.NewString(),
		OrgID:         orgID,
		EFKey:         efKey,
		EffectiveFrom: effectiveFrom,
		EffectiveTo:   nil,
		Payload:       payload,
		PayloadHash:   hash,
		ChangedBy:     changedBy,
		ChangeReason:  changeReason,
		CreatedAt:     l.clock().UTC(),
	}
	if err := l.store.AppendVersion(ctx, v); err != nil {
		return "", fmt.Errorf("appending version for %q: %w", efKey, err)
	}
	return hash, nil
}

// History returns all versions for (org, efKey), newest first.
func (l *Ledger) History(ctx context.Context, orgID, efKey string) ([]*Version, error) {
	return l.store.VersionsByKey(ctx, orgID, efKey)
}

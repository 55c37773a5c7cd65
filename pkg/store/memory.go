package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carbonledger/core/pkg/calc"
	"github.com/carbonledger/core/pkg/factor"
	"github.com/carbonledger/core/pkg/ledger"
	"github.com/carbonledger/core/pkg/provenance"
)

// Memory is an in-memory Store for tests and the demo workflow. Values are
// stored by reference; callers must not mutate records after handing them
// over.
type Memory struct {
	mu         sync.RWMutex
	factors    map[string]*factor.Factor  // org\x00key
	activities map[string]*calc.Activity  // org\x00id
	runs       map[string]*calc.Run       // org\x00id
	versions   []*ledger.Version
	signatures []*provenance.Signature
	events     []*AuditEvent
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		factors:    make(map[string]*factor.Factor),
		activities: make(map[string]*calc.Activity),
		runs:       make(map[string]*calc.Run),
	}
}

func key(orgID, id string) string { return orgID + "\x00" + id }

func (m *Memory) UpsertFactor(_ context.Context, f *factor.Factor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factors[key(f.OrgID, f.Key)] = f
	return nil
}

func (m *Memory) FactorByKey(_ context.Context, orgID, k string) (*factor.Factor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.factors[key(orgID, k)], nil
}

func (m *Memory) ListFactors(_ context.Context, orgID string) ([]*factor.Factor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*factor.Factor
	for _, f := range m.factors {
		if f.OrgID == orgID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) PutActivity(_ context.Context, a *calc.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities[key(a.OrgID, a.ID)] = a
	return nil
}

func (m *Memory) ActivityByID(_ context.Context, orgID, id string) (*calc.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activities[key(orgID, id)], nil
}

func (m *Memory) DeleteActivity(_ context.Context, orgID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.activities, key(orgID, id))
	return nil
}

func (m *Memory) ListActivities(_ context.Context, orgID string) ([]*calc.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*calc.Activity
	for _, a := range m.activities {
		if a.OrgID == orgID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SaveRun(_ context.Context, run *calc.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[key(run.OrgID, run.ID)]; exists {
		return fmt.Errorf("run %s already saved", run.ID)
	}
	m.runs[key(run.OrgID, run.ID)] = run
	return nil
}

func (m *Memory) RunByID(_ context.Context, orgID, id string) (*calc.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[key(orgID, id)]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return run, nil
}

func (m *Memory) UpdateRunReview(_ context.Context, run *calc.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[key(run.OrgID, run.ID)]; !ok {
		return fmt.Errorf("run %s: %w", run.ID, ErrNotFound)
	}
	m.runs[key(run.OrgID, run.ID)] = run
	return nil
}

func (m *Memory) ListRuns(_ context.Context, orgID string) ([]*calc.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*calc.Run
	for _, r := range m.runs {
		if r.OrgID == orgID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) OpenVersion(_ context.Context, orgID, efKey string) (*ledger.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.versions) - 1; i >= 0; i-- {
		v := m.versions[i]
		if v.OrgID == orgID && v.EFKey == efKey && v.EffectiveTo == nil {
			return v, nil
		}
	}
	return nil, nil
}

func (m *Memory) CloseVersion(_ context.Context, versionID string, effectiveTo time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions {
		if v.ID == versionID {
			to := effectiveTo
			v.EffectiveTo = &to
			return nil
		}
	}
	return fmt.Errorf("version %s: %w", versionID, ErrNotFound)
}

func (m *Memory) AppendVersion(_ context.Context, v *ledger.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions = append(m.versions, v)
	return nil
}

func (m *Memory) VersionsByKey(_ context.Context, orgID, efKey string) ([]*ledger.Version, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ledger.Version
	for i := len(m.versions) - 1; i >= 0; i-- {
		if m.versions[i].OrgID == orgID && m.versions[i].EFKey == efKey {
			out = append(out, m.versions[i])
		}
	}
	return out, nil
}

func (m *Memory) AppendSignature(_ context.Context, sig *provenance.Signature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signatures = append(m.signatures, sig)
	return nil
}

func (m *Memory) LatestSignature(_ context.Context, orgID, runID string) (*provenance.Signature, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.signatures) - 1; i >= 0; i-- {
		s := m.signatures[i]
		if s.OrgID == orgID && s.RunID == runID {
			return s, nil
		}
	}
	return nil, fmt.Errorf("signature for run %s: %w", runID, ErrNotFound)
}

func (m *Memory) AppendEvent(_ context.Context, ev *AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of all appended audit events, oldest first.
func (m *Memory) Events() []*AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}

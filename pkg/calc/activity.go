// Package calc implements the emission calculation engine: quantity
// derivation from tenant inputs, per-activity CO2e computation and the
// aggregate calculation run with its review state machine.
package calc

import "time"

// Activity is one tenant-recorded activity. It references an emission
// factor by key (not by version); the factor content actually used is
// pinned into the run's ef_snapshot at calculation time.
type Activity struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`

	Name  string `json:"name"`
	EFKey string `json:"ef_key"`

	Inputs         map[string]any `json:"inputs"`
	Scope          string         `json:"scope,omitempty"`
	LifecycleStage string         `json:"lifecycle_stage,omitempty"`
	Period         string         `json:"period,omitempty"`
	Note           string         `json:"note,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

package calc

import (
	"errors"
	"fmt"
	"time"
)

// RunType is the closed set of calculation kinds.
type RunType string

const (
	RunTypeCFO    RunType = "CFO"    // organizational footprint
	RunTypeCFP    RunType = "CFP"    // product footprint
	RunTypeCredit RunType = "CREDIT" // credit-project baseline run
)

// ValidRunType reports whether t is one of the supported run types.
func ValidRunType(t RunType) bool {
	switch t {
	case RunTypeCFO, RunTypeCFP, RunTypeCredit:
		return true
	}
	return false
}

// ReviewStatus is the monotonic review state of a run.
type ReviewStatus string

const (
	ReviewDraft    ReviewStatus = "DRAFT"
	ReviewReviewed ReviewStatus = "REVIEWED"
	ReviewApproved ReviewStatus = "APPROVED"
)

// ErrInvalidTransition reports a review-state change that would move
// backwards or skip a stage.
var ErrInvalidTransition = errors.New("invalid review transition")

// Row is one activity's contribution to a run.
type Row struct {
	ActivityID   string         `json:"activity_id"`
	ActivityName string         `json:"activity_name"`
	EFKey        string         `json:"ef_key"`
	Inputs       map[string]any `json:"inputs"`
	KgCO2e       float64        `json:"kgco2e"`
	Trace        RowTrace       `json:"trace"`
}

// Details holds the row-level trace of a run plus review annotations.
type Details struct {
	Rows          []Row  `json:"rows"`
	ReviewNotes   string `json:"review_notes,omitempty"`
	ApprovalNotes string `json:"approval_notes,omitempty"`
}

// Run is one completed aggregate calculation. It is created once; only its
// review state advances afterwards.
type Run struct {
	ID    string  `json:"id"`
	OrgID string  `json:"org_id"`
	Type  RunType `json:"run_type"`

	TotalKgCO2e float64 `json:"total_kgco2e"`
	TotalTCO2e  float64 `json:"total_tco2e"`

	Details Details `json:"details"`
	// EFSnapshot pins the content hash of each factor as seen at
	// calculation time, keyed by factor key.
	EFSnapshot map[string]string `json:"ef_snapshot"`

	ReviewStatus ReviewStatus `json:"review_status"`
	ReviewedBy   string       `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time   `json:"reviewed_at,omitempty"`
	ApprovedBy   string       `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time   `json:"approved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	Note      string    `json:"note,omitempty"`
}

// Review advances DRAFT → REVIEWED. Any other starting state fails: the
// state machine never moves backwards and never leaves APPROVED.
func (r *Run) Review(by, notes string, at time.Time) error {
	if r.ReviewStatus != ReviewDraft {
		return fmt.Errorf("%w: cannot review a %s run", ErrInvalidTransition, r.ReviewStatus)
	}
	r.ReviewStatus = ReviewReviewed
	r.ReviewedBy = by
	r.ReviewedAt = &at
	r.Details.ReviewNotes = notes
	return nil
}

// Approve advances REVIEWED → APPROVED.
func (r *Run) Approve(by, notes string, at time.Time) error {
	if r.ReviewStatus != ReviewReviewed {
		return fmt.Errorf("%w: cannot approve a %s run", ErrInvalidTransition, r.ReviewStatus)
	}
	r.ReviewStatus = ReviewApproved
	r.ApprovedBy = by
	r.ApprovedAt = &at
	r.Details.ApprovalNotes = notes
	return nil
}

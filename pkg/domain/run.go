package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunID uniquely identifies a pipeline run.
// It wraps uuid.UUID to provide type safety at the domain layer.
type RunID uuid.UUID

// UserID identifies an authenticated API caller.
type UserID uuid.UUID

// RunStatus represents the lifecycle state of a pipeline run.
type RunStatus string

const (
	// RunStatusPending indicates the run has been enqueued but not processed yet.
	RunStatusPending RunStatus = "PENDING"
	// RunStatusCompleted indicates the run finished and its summary is available.
	RunStatusCompleted RunStatus = "COMPLETED"
	// RunStatusFailed indicates the run ended with an error; see LastError for details.
	RunStatusFailed RunStatus = "FAILED"
)

// Run represents a single pipeline run request and its current state.
type Run struct {
	// ID is the unique identifier of the run.
	ID RunID `json:"id"`

	// Params are the normalized filters this run was requested with.
	Params RunParams `json:"params"`
	// ParamsKey is the canonical string form of Params, used to deduplicate
	// concurrent requests for the same combination set.
	ParamsKey string `json:"-"`

	// Status is the current lifecycle state of the run.
	Status RunStatus `json:"status"`

	// Metadata holds the run outcome once the run completed.
	Metadata *RunMetadata `json:"metadata,omitempty"`

	// ResultRunID points at the run whose stored rows answer queries for this
	// run. It differs from ID when this run reused a recent completed result
	// instead of recomputing it.
	ResultRunID *RunID `json:"resultRunId,omitempty"`

	// LastError stores the most recent error message, if any, encountered
	// while executing the run.
	LastError string `json:"-"`

	// CreatedAt is the time when the run request was created.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is the time when the run was last updated.
	UpdatedAt time.Time `json:"updatedAt"`
}

// ResultID returns the run ID under which this run's result rows are stored.
func (r *Run) ResultID() RunID {
	if r.ResultRunID != nil {
		return *r.ResultRunID
	}

	return r.ID
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of one ingestion pass.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ItemError describes one identifier that failed during a run.
type ItemError struct {
	NIPT    string `json:"nipt"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// ScrapeRun is the record of one ingestion pass: created when the run starts,
// finalized when it ends, read-only afterward.
type ScrapeRun struct {
	ID          uuid.UUID   `json:"id"`
	Status      RunStatus   `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Processed   int         `json:"processed"`
	Created     int         `json:"created"`
	Updated     int         `json:"updated"`
	Failed      int         `json:"failed"`
	// UnparsedFragments counts free-text fragments the entity parser could
	// not segment confidently; these reduce extraction completeness but are
	// not item failures.
	UnparsedFragments int         `json:"unparsed_fragments"`
	Errors            []ItemError `json:"errors"`
}

// NewScrapeRun opens a run record in the running state.
func NewScrapeRun() ScrapeRun {
	return ScrapeRun{
		ID:        uuid.New(),
		Status:    RunRunning,
		StartedAt: time.Now().UTC(),
		Errors:    []ItemError{},
	}
}

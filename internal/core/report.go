package core

import (
	"time"

	"rd3/pkg/domain"
)

// Run statuses.
const (
	StatusOK         = "ok"
	StatusIncomplete = "incomplete"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Report summarises one run. It is stored as JSON next to the other run
// artifacts and returned to the caller.
type Report struct {
	RunID        string         `json:"run_id"`
	Command      string         `json:"command"`
	Args         []string       `json:"args,omitempty"`
	DryRun       bool           `json:"dry_run"`
	Started      time.Time      `json:"started"`
	Finished     time.Time      `json:"finished"`
	Status       string         `json:"status"`
	Error        string         `json:"error,omitempty"`
	Outcomes     map[string]int `json:"outcomes,omitempty"`
	Errors       []ErrorCount   `json:"errors,omitempty"`
	Written      map[string]int `json:"written,omitempty"`
	FailedChunks []ChunkFailure `json:"failed_chunks,omitempty"`
	Structural   []string       `json:"structural_errors,omitempty"`
	Warnings     int            `json:"warnings,omitempty"`
	Unresolved   []string       `json:"unresolved,omitempty"`
	Phases       []Phase        `json:"phases"`
	Artifacts    []string       `json:"artifacts,omitempty"`
}

// ErrorCount is one line of the per-row error summary.
type ErrorCount struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}

// ChunkFailure is a write chunk the catalog did not apply.
type ChunkFailure struct {
	Table   domain.Table `json:"table"`
	Offset  int          `json:"offset"`
	Size    int          `json:"size"`
	Status  int          `json:"status,omitempty"`
	Message string       `json:"message"`
}

// Phase is the timing of one step of a run.
type Phase struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

func (r *Report) addWritten(table domain.Table, n int) {
	if n == 0 {
		return
	}
	if r.Written == nil {
		r.Written = map[string]int{}
	}
	r.Written[string(table)] += n
}

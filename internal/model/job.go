// Package model defines the core domain types shared across the planning
// phase, the batch runner, and the persistence layer.
package model

import "time"

// JobStatus represents the current state of an annotation job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusPaused     JobStatus = "paused"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusPaused,
		JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Job is the mutable record for one spreadsheet annotation run. It is
// created once per submission and mutated only by the runner (status and
// counters) and by pause/resume/cancel requests. Progress counters are
// persisted at every checkpoint so observers can compute processed/total
// without touching the provider.
type Job struct {
	ID              string     `json:"id"`
	Status          JobStatus  `json:"status"`
	TotalLinks      int        `json:"total_links"`
	ProcessedLinks  int        `json:"processed_links"`
	FailedLinks     int        `json:"failed_links"`
	PausedAt        *time.Time `json:"paused_at,omitempty"`
	ResumeFromIndex int        `json:"resume_from_index"`
	SourceRef       string     `json:"source_ref"`
	ResultRef       string     `json:"result_ref,omitempty"`
	PartialRef      string     `json:"partial_ref,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`

	// Control flags set by pause/cancel requests and observed by the
	// runner at checkpoint boundaries only, never mid-request.
	PauseRequested  bool   `json:"-"`
	CancelRequested bool   `json:"-"`
	CancelReason    string `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

package model

import "time"

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is final. A job in a terminal
// status never transitions again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Job represents a queued stem separation request
type Job struct {
	ID            string      `json:"id"`
	Profile       StemProfile `json:"profile"`
	Status        JobStatus   `json:"status"`
	Progress      int         `json:"progress"`
	QueuePosition int         `json:"queuePosition"`
	Error         *string     `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	StartedAt     *time.Time  `json:"startedAt,omitempty"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`

	// On-disk layout: Dir is the per-job directory, InputPath the uploaded
	// audio (cleared once the job is terminal and the file is reclaimed),
	// OutputDir the directory the engine writes stems into. Outputs holds
	// stem file names relative to OutputDir.
	Dir       string   `json:"-"`
	InputPath string   `json:"-"`
	OutputDir string   `json:"-"`
	Outputs   []string `json:"outputs,omitempty"`
}

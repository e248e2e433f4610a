package model

import "time"

// SubmitRequest carries the non-file fields of a separation submission
type SubmitRequest struct {
	Stems string `json:"stems" validate:"omitempty,printascii,max=16"`
}

// SubmitResponse is returned when a job is accepted into the queue.
// Profile echoes the profile that will actually run, which may be a
// cheaper one than requested.
type SubmitResponse struct {
	JobID         string      `json:"jobId"`
	Status        JobStatus   `json:"status"`
	QueuePosition int         `json:"queuePosition"`
	Profile       StemProfile `json:"profile"`
	Message       string      `json:"message"`
}

// JobStatusResponse is the polling view of a job
type JobStatusResponse struct {
	JobID         string      `json:"jobId"`
	Status        JobStatus   `json:"status"`
	Profile       StemProfile `json:"profile"`
	Progress      int         `json:"progress"`
	QueuePosition *int        `json:"queuePosition,omitempty"`
	Message       string      `json:"message,omitempty"`
	Outputs       []string    `json:"outputs"`
	Error         *string     `json:"error,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	StartedAt     *time.Time  `json:"startedAt,omitempty"`
	CompletedAt   *time.Time  `json:"completedAt,omitempty"`
}

// QueueStatsResponse aggregates queue state for operational visibility
type QueueStatsResponse struct {
	PendingCount  int `json:"pendingCount"`
	RunningCount  int `json:"runningCount"`
	CompleteCount int `json:"completeCount"`
	FailedCount   int `json:"failedCount"`
}

// AnalyzeResponse mirrors the feature extractor's result
type AnalyzeResponse struct {
	BPM      int     `json:"bpm"`
	Key      string  `json:"key"`
	Scale    string  `json:"scale"`
	Duration float64 `json:"duration"`
}

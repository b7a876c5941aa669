package model

import "time"

// JobStatus is the display status carried in job events.
type JobStatus string

const (
	JobStatusStarting  JobStatus = "Starting..."
	JobStatusRunning   JobStatus = "Running"
	JobStatusComplete  JobStatus = "Complete"
	JobStatusAbandoned JobStatus = "Abandoned"
)

// Job kinds, one per job-starting request.
const (
	JobKindProcess = "process"
	JobKindAsset   = "asset"
	JobKindPatch   = "patch"
)

// Job represents a long-running server-side operation.
type Job struct {
	ID          int64      `json:"id"`
	Kind        string     `json:"kind"`
	Target      string     `json:"target,omitempty"` // asset or patch name
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Terminal reports whether no further events will be emitted for the job.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusComplete || j.Status == JobStatusAbandoned
}

// JobTaskPayload is the asynq task body for a queued job driver.
type JobTaskPayload struct {
	JobID int64 `json:"jobId"`
}

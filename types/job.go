package types

import "time"

// JobStatus represents the current status of a separation job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further progress updates follow this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// SeparationOptions carries the processing options chosen at submission
type SeparationOptions struct {
	Model    string   `json:"model"`
	Stems    []string `json:"stems,omitempty"`
	Priority int      `json:"priority,omitempty"`
}

// SeparationJob represents a source-separation job in the queue
type SeparationJob struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Model       string     `json:"model"`
	Stems       []string   `json:"stems,omitempty"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"` // 0-100 percentage
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

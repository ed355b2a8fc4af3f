package types

import "time"

// ProgressMessage represents a WebSocket progress update message
type ProgressMessage struct {
	TaskID    string    `json:"taskId"`
	Progress  int       `json:"progress"` // 0-100 percentage
	Status    string    `json:"status"`   // current job status
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether this is the last message the channel will carry.
func (m ProgressMessage) Terminal() bool {
	return JobStatus(m.Status).Terminal()
}

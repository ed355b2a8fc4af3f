package client

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports bad or missing input, either caught locally
// before any network request or extracted per-field from a 400 response.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NetworkError reports a transport-level failure
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError reports a non-2xx response without per-field detail
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// ConnectionLost reports a status channel that dropped before a terminal
// message and exhausted its reconnect budget
type ConnectionLost struct {
	TaskID   string
	Attempts int
	Err      error
}

func (e *ConnectionLost) Error() string {
	return fmt.Sprintf("connection lost for task %s after %d attempts: %v", e.TaskID, e.Attempts, e.Err)
}

func (e *ConnectionLost) Unwrap() error { return e.Err }

// ProcessingFailed reports a job that reached terminal failed status,
// with the server-supplied reason
type ProcessingFailed struct {
	TaskID string
	Reason string
}

func (e *ProcessingFailed) Error() string {
	return fmt.Sprintf("processing failed for task %s: %s", e.TaskID, e.Reason)
}

package model

import "time"

// EventKind identifies a progress event type.
type EventKind string

const (
	// EventStarted fires when a reference is dispatched to the workers.
	EventStarted EventKind = "started"
	// EventDbResult fires once per completed adapter lookup, in completion order.
	EventDbResult EventKind = "db_result"
	// EventRetryPass fires when failed adapters are re-queried for a reference.
	EventRetryPass EventKind = "retry_pass"
	// EventWarning fires when a verdict was reached despite adapter failures.
	EventWarning EventKind = "warning"
	// EventCompleted fires once all adapters for a reference settled or the
	// run was cancelled.
	EventCompleted EventKind = "completed"
)

// ProgressEvent is delivered to an external sink during validation. It is not
// retained by the pipeline after delivery. Events for different references may
// interleave; per-reference tracking should key on RefIndex.
type ProgressEvent struct {
	Kind      EventKind     `json:"kind"`
	RefIndex  int           `json:"ref_index"`
	Total     int           `json:"total"`
	RefTitle  string        `json:"ref_title,omitempty"`
	DbName    string        `json:"db_name,omitempty"`
	DbStatus  DbStatus      `json:"db_status,omitempty"`
	Elapsed   time.Duration `json:"elapsed_ns,omitempty"`
	Status    Status        `json:"status,omitempty"` // set on EventCompleted
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

package events

import (
	"fmt"
	"strings"
	"time"
)

// EventType is a string constant identifying the event category.
type EventType string

// Job and process lifecycle events, as published by internal/manager.
const (
	JobAdded      EventType = "job.add"
	JobRemoved    EventType = "job.remove"
	JobStarted    EventType = "job.start"
	JobStopped    EventType = "job.stop"
	JobUpdated    EventType = "job.update"
	JobFlapping   EventType = "job.flapping"
	ProcessSpawn  EventType = "proc.spawn"
	ProcessExit   EventType = "proc.exit"
	SpawnError    EventType = "proc.spawn_error"
	DaemonStart   EventType = "gaffer.start"
	DaemonStop    EventType = "gaffer.stop"
)

// Key manager lifecycle events.
const (
	KeyOpened EventType = "key.open"
	KeyClosed EventType = "key.close"
	KeySet    EventType = "key.set"
	KeyDelete EventType = "key.delete"
)

// Event is a single occurrence in the supervisor's lifecycle. Job identifies
// the affected job (empty for daemon-wide events). PID is set for
// process-scoped events (spawn/exit).
type Event struct {
	Time    time.Time `json:"time"`
	Type    EventType `json:"type"`
	Job     string    `json:"job,omitempty"`
	PID     *int      `json:"pid,omitempty"`
	Payload any       `json:"payload,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// New creates an event of the given type for the given job. Time is left
// zero; the Bus stamps it at Publish.
func New(t EventType, job string) Event {
	return Event{Type: t, Job: job}
}

// WithPID returns a copy of the event with the pid set.
func (e Event) WithPID(pid int) Event {
	e.PID = &pid
	return e
}

// WithPayload returns a copy of the event with the payload set.
func (e Event) WithPayload(payload any) Event {
	e.Payload = payload
	return e
}

// WithError returns a copy of the event carrying the error message.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// IsFailure reports whether this event represents a failure.
func (e Event) IsFailure() bool {
	return e.Error != ""
}

// String returns a human-readable one-line representation.
func (e Event) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Type))
	if e.Job != "" {
		parts = append(parts, e.Job)
	}
	if e.PID != nil {
		parts = append(parts, fmt.Sprintf("pid=%d", *e.PID))
	}
	if e.Error != "" {
		parts = append(parts, "error="+e.Error)
	}
	return strings.Join(parts, " ")
}

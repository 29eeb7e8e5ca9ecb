package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what happened to a task.
type Kind string

const (
	KindStarted   Kind = "started"
	KindProgress  Kind = "progress"
	KindFinished  Kind = "finished"
	KindFailed    Kind = "failed"
	KindCancelled Kind = "cancelled"
	KindKilled    Kind = "killed"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Terminal reports whether the kind ends a run.
func (k Kind) Terminal() bool {
	switch k {
	case KindFinished, KindFailed, KindCancelled, KindKilled:
		return true
	default:
		return false
	}
}

// LifecycleEvent describes one transition of a task slot.
type LifecycleEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	Kind Kind `json:"kind"`

	// TaskID is the consumer-chosen task id
	TaskID int `json:"task_id"`

	// RunID identifies the run; it is uuid.Nil for killed replays, which have no run
	RunID uuid.UUID `json:"run_id"`

	// Error is the failure message for KindFailed
	Error string `json:"error,omitempty"`

	// Payload is the progress value or result serialized as JSON, if any
	Payload json.RawMessage `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *LifecycleEvent) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewLifecycleEvent creates an event for taskID. A nil payload leaves Payload empty.
func NewLifecycleEvent(kind Kind, taskID int, runID uuid.UUID, payload any) (*LifecycleEvent, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	return &LifecycleEvent{
		ID:        uuid.New(),
		Kind:      kind,
		TaskID:    taskID,
		RunID:     runID,
		Payload:   raw,
		CreatedAt: time.Now(),
	}, nil
}

// EventHandler defines an interface for components that observe lifecycle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *LifecycleEvent) error
}

// EventEmitter defines an interface for components that fan events out to handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *LifecycleEvent) error
}

// HandlerFunc adapts a function to the EventHandler interface.
type HandlerFunc func(ctx context.Context, event *LifecycleEvent) error

// HandleEvent calls f(ctx, event).
func (f HandlerFunc) HandleEvent(ctx context.Context, event *LifecycleEvent) error {
	return f(ctx, event)
}

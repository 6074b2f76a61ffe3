// Package adapter defines the notification boundary for finished turns.
//
// Adapters publish a content-free turn_completed event to downstream systems,
// carrying the rpcGlobalId so feedback can be correlated with the server-side
// response. Publishing happens once per turn with no retry.
package adapter

import (
	"context"
	"time"

	"github.com/pithecene-io/turnstream/types"
)

// EventTypeTurnCompleted is the event_type of every published event.
const EventTypeTurnCompleted = "turn_completed"

// TurnCompletedEvent is the payload published when a turn finishes.
// It never carries prompt or response text.
type TurnCompletedEvent struct {
	ContractVersion  string `json:"contract_version"`
	EventType        string `json:"event_type"` // always "turn_completed"
	TurnID           string `json:"turn_id"`
	SessionID        string `json:"session_id,omitempty"`
	RPCGlobalID      int64  `json:"rpc_global_id"`
	Outcome          string `json:"outcome"` // completed, server_error, etc.
	ErrorKind        string `json:"error_kind,omitempty"`
	Endpoint         string `json:"endpoint"`
	Timestamp        string `json:"timestamp"` // RFC 3339
	Yields           int    `json:"yields"`
	ExplanationBytes int    `json:"explanation_bytes"`
	DurationMs       int64  `json:"duration_ms"`
}

// NewTurnCompletedEvent fills the constant fields of an event.
func NewTurnCompletedEvent(turnID, endpoint string, completedAt time.Time) *TurnCompletedEvent {
	return &TurnCompletedEvent{
		ContractVersion: types.ContractVersion,
		EventType:       EventTypeTurnCompleted,
		TurnID:          turnID,
		Endpoint:        endpoint,
		Timestamp:       completedAt.UTC().Format(time.RFC3339),
	}
}

// Adapter publishes turn completion events to a downstream system.
type Adapter interface {
	// Publish sends one event. Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *TurnCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Package types defines core domain types for the turnstream assembler.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"

	"github.com/google/uuid"
)

// TurnMeta contains the client-side identity of one conversation turn.
type TurnMeta struct {
	// TurnID identifies the turn in logs, metrics, and notifications.
	TurnID string
	// SessionID links turns of the same conversation. Nil if unknown.
	SessionID *string
}

// NewTurnMeta returns a TurnMeta with a fresh random TurnID.
func NewTurnMeta(sessionID string) *TurnMeta {
	meta := &TurnMeta{TurnID: uuid.NewString()}
	if sessionID != "" {
		meta.SessionID = &sessionID
	}
	return meta
}

// Validate checks that the turn has an identity.
func (m *TurnMeta) Validate() error {
	if m == nil {
		return errors.New("turn meta must not be nil")
	}
	if m.TurnID == "" {
		return errors.New("turn_id must be non-empty")
	}
	return nil
}

// OutcomeStatus is the final classification of a turn.
type OutcomeStatus string

const (
	// OutcomeCompleted indicates the stream ended cleanly.
	OutcomeCompleted OutcomeStatus = "completed"
	// OutcomePermissionDenied indicates a 403 terminal status.
	OutcomePermissionDenied OutcomeStatus = "permission_denied"
	// OutcomeUnexpectedStatus indicates a terminal status other than 200 or 403.
	OutcomeUnexpectedStatus OutcomeStatus = "unexpected_status"
	// OutcomeTransportError indicates the channel could not be set up.
	OutcomeTransportError OutcomeStatus = "transport_error"
	// OutcomeParseError indicates a fragment could not be repaired into JSON.
	OutcomeParseError OutcomeStatus = "parse_error"
	// OutcomeUnknownResultKind indicates an object of no recognized shape.
	OutcomeUnknownResultKind OutcomeStatus = "unknown_result_kind"
	// OutcomeServerError indicates an explicit error item from the backend.
	OutcomeServerError OutcomeStatus = "server_error"
	// OutcomeCanceled indicates the caller abandoned the turn.
	OutcomeCanceled OutcomeStatus = "canceled"
)

// IsSuccess returns true only for OutcomeCompleted.
func (s OutcomeStatus) IsSuccess() bool {
	return s == OutcomeCompleted
}

// TurnOutcome is the final outcome of a turn.
type TurnOutcome struct {
	// Status is the outcome classification.
	Status OutcomeStatus `json:"status" yaml:"status"`
	// Message is a human-readable description.
	Message string `json:"message" yaml:"message"`
	// StatusCode is the terminal status code for status-driven outcomes.
	StatusCode int `json:"status_code,omitempty" yaml:"status_code,omitempty"`
}

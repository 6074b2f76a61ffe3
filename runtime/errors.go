// Package runtime assembles streamed conversation turns.
//
// The Accumulator owns per-turn decoder state and renders the explanation.
// The ConversationDriver pulls fragments from a channel, decodes them, feeds
// the Accumulator, and yields a snapshot whenever the explanation changes.
package runtime

import (
	"errors"
	"fmt"
)

// ErrorKind classifies turn errors for outcome determination.
type ErrorKind string

const (
	// ErrorPermissionDenied indicates a 403 terminal status.
	ErrorPermissionDenied ErrorKind = "permission_denied"
	// ErrorUnexpectedStatus indicates a terminal status other than 200 and 403.
	ErrorUnexpectedStatus ErrorKind = "unexpected_status"
	// ErrorTransportSetup indicates a channel that failed to open or reported a transport error.
	ErrorTransportSetup ErrorKind = "transport_error"
	// ErrorParse indicates a fragment that could not be repaired into a JSON array of objects.
	ErrorParse ErrorKind = "parse_error"
	// ErrorUnknownResultKind indicates a parsed object matching no known shape.
	ErrorUnknownResultKind ErrorKind = "unknown_result_kind"
	// ErrorServer indicates an explicit error item from the backend.
	ErrorServer ErrorKind = "server_error"
	// ErrorCanceled indicates the caller abandoned the turn.
	ErrorCanceled ErrorKind = "canceled"
)

// TurnError is the terminal error of a failed turn.
type TurnError struct {
	// Kind classifies the failure.
	Kind ErrorKind
	// Message describes the failure. For ErrorServer it is the server's message.
	Message string
	// StatusCode is set for status-driven kinds.
	StatusCode int
	// Body is the response body captured with an unexpected status.
	Body string
	// Err is the underlying error, if any.
	Err error
}

func (e *TurnError) Error() string {
	var msg string
	switch e.Kind {
	case ErrorPermissionDenied:
		msg = "permission denied (status 403)"
	case ErrorUnexpectedStatus:
		msg = fmt.Sprintf("unexpected status %d", e.StatusCode)
		if e.Body != "" {
			msg += ": " + e.Body
		}
	case ErrorServer:
		msg = "server error: " + e.Message
	default:
		msg = string(e.Kind)
		if e.Message != "" {
			msg += ": " + e.Message
		}
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a TurnError in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var turnErr *TurnError
	if errors.As(err, &turnErr) {
		return turnErr.Kind
	}
	return ""
}

// IsPermissionDenied returns true if the turn failed with a 403 status.
func IsPermissionDenied(err error) bool {
	return KindOf(err) == ErrorPermissionDenied
}

// IsUnexpectedStatus returns true if the turn failed with a non-200, non-403 status.
func IsUnexpectedStatus(err error) bool {
	return KindOf(err) == ErrorUnexpectedStatus
}

// IsTransportSetupError returns true if the channel failed to open or reported a transport error.
func IsTransportSetupError(err error) bool {
	return KindOf(err) == ErrorTransportSetup
}

// IsParseError returns true if a fragment failed repair or parsing.
func IsParseError(err error) bool {
	return KindOf(err) == ErrorParse
}

// IsUnknownResultKind returns true if a parsed object matched no known shape.
func IsUnknownResultKind(err error) bool {
	return KindOf(err) == ErrorUnknownResultKind
}

// IsServerError returns true if the backend sent an explicit error item.
func IsServerError(err error) bool {
	return KindOf(err) == ErrorServer
}

// IsCanceled returns true if the caller abandoned the turn.
func IsCanceled(err error) bool {
	return KindOf(err) == ErrorCanceled
}

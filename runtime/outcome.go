package runtime

import (
	"errors"
	"io"

	"github.com/pithecene-io/turnstream/types"
)

// Process exit codes by turn outcome.
const (
	ExitCodeCompleted        = 0   // stream ended cleanly
	ExitCodeServerError      = 1   // backend sent an error item
	ExitCodeProtocolError    = 2   // parse error or unknown result kind
	ExitCodeStatusError      = 3   // unexpected status or transport error
	ExitCodePermissionDenied = 4   // status 403
	ExitCodeCanceled         = 130 // caller abandoned the turn
)

// DetermineOutcome maps the error a turn ended with to its outcome.
// A nil error or io.EOF is a completed turn. Errors outside the TurnError
// taxonomy are reported as transport errors.
func DetermineOutcome(err error) *types.TurnOutcome {
	if err == nil || errors.Is(err, io.EOF) {
		return &types.TurnOutcome{
			Status:  types.OutcomeCompleted,
			Message: "turn completed",
		}
	}

	var turnErr *TurnError
	if !errors.As(err, &turnErr) {
		return &types.TurnOutcome{
			Status:  types.OutcomeTransportError,
			Message: err.Error(),
		}
	}

	outcome := &types.TurnOutcome{
		Message:    turnErr.Error(),
		StatusCode: turnErr.StatusCode,
	}
	switch turnErr.Kind {
	case ErrorPermissionDenied:
		outcome.Status = types.OutcomePermissionDenied
	case ErrorUnexpectedStatus:
		outcome.Status = types.OutcomeUnexpectedStatus
	case ErrorTransportSetup:
		outcome.Status = types.OutcomeTransportError
	case ErrorParse:
		outcome.Status = types.OutcomeParseError
	case ErrorUnknownResultKind:
		outcome.Status = types.OutcomeUnknownResultKind
	case ErrorServer:
		outcome.Status = types.OutcomeServerError
		outcome.Message = turnErr.Message
	case ErrorCanceled:
		outcome.Status = types.OutcomeCanceled
	default:
		outcome.Status = types.OutcomeTransportError
	}
	return outcome
}

// ExitCode returns the process exit code for an outcome.
func ExitCode(outcome *types.TurnOutcome) int {
	if outcome == nil {
		return ExitCodeCompleted
	}
	switch outcome.Status {
	case types.OutcomeCompleted:
		return ExitCodeCompleted
	case types.OutcomeServerError:
		return ExitCodeServerError
	case types.OutcomeParseError, types.OutcomeUnknownResultKind:
		return ExitCodeProtocolError
	case types.OutcomePermissionDenied:
		return ExitCodePermissionDenied
	case types.OutcomeCanceled:
		return ExitCodeCanceled
	default:
		return ExitCodeStatusError
	}
}

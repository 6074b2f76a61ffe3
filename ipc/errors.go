// Package ipc implements wire decoding for conversation turns: repair and
// classification of streamed JSON fragments, and the length-prefixed
// transcript codec used to record and replay channel sessions.
package ipc

import (
	"errors"
	"fmt"
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete transcript frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a transcript frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
	// FrameErrorParse indicates a fragment that is not valid JSON after repair,
	// or a known result shape with a malformed payload.
	FrameErrorParse
	// FrameErrorUnknownKind indicates a parsed object matching no known result shape.
	FrameErrorUnknownKind
)

// String returns a short name for the kind.
func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorDecode:
		return "decode"
	case FrameErrorParse:
		return "parse"
	case FrameErrorUnknownKind:
		return "unknown_kind"
	default:
		return fmt.Sprintf("FrameErrorKind(%d)", int(k))
	}
}

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if this error is fatal for the reader that produced it.
// Every kind except a decode error of a single transcript record is fatal.
func (e *FrameError) IsFatal() bool {
	return e.Kind != FrameErrorDecode
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// IsParseError returns true if err is a FrameError of kind FrameErrorParse.
func IsParseError(err error) bool {
	return frameErrorKind(err) == FrameErrorParse
}

// IsUnknownKindError returns true if err is a FrameError of kind FrameErrorUnknownKind.
func IsUnknownKindError(err error) bool {
	return frameErrorKind(err) == FrameErrorUnknownKind
}

func frameErrorKind(err error) FrameErrorKind {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.Kind
	}
	return -1
}

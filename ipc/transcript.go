package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/turnstream/types"
)

// Transcript frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// RecordType discriminates transcript records.
type RecordType string

const (
	// RecordFragment carries one raw fragment as delivered by the channel.
	RecordFragment RecordType = "fragment"
	// RecordStatus carries a terminal status reported by the channel.
	RecordStatus RecordType = "status"
	// RecordEnd marks the channel's end-of-stream.
	RecordEnd RecordType = "end"
)

// TranscriptRecord is one observed channel event.
type TranscriptRecord struct {
	Type     RecordType            `msgpack:"type"`
	Fragment string                `msgpack:"fragment,omitempty"`
	Status   *types.TerminalStatus `msgpack:"status,omitempty"`
}

// Validate checks that the record carries the payload its type requires.
func (r *TranscriptRecord) Validate() error {
	switch r.Type {
	case RecordFragment, RecordEnd:
		return nil
	case RecordStatus:
		if r.Status == nil {
			return errors.New("status record without status")
		}
		return nil
	default:
		return fmt.Errorf("unknown record type %q", r.Type)
	}
}

// TranscriptDecoder decodes length-prefixed msgpack transcript records from a stream.
type TranscriptDecoder struct {
	reader io.Reader
}

// NewTranscriptDecoder creates a new transcript decoder.
func NewTranscriptDecoder(r io.Reader) *TranscriptDecoder {
	return &TranscriptDecoder{reader: r}
}

// ReadFrame reads a single frame from the stream.
// Returns the raw payload bytes (msgpack-encoded).
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *TranscriptDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	_, err = io.ReadFull(d.reader, payload)
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}

	return payload, nil
}

// ReadRecord reads and decodes the next record.
// Returns io.EOF when the stream ends cleanly between records.
func (d *TranscriptDecoder) ReadRecord() (*TranscriptRecord, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeRecord(payload)
}

// DecodeRecord decodes a payload as a TranscriptRecord.
func DecodeRecord(payload []byte) (*TranscriptRecord, error) {
	var rec TranscriptRecord
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode transcript record",
			Err:  err,
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "invalid transcript record",
			Err:  err,
		}
	}
	return &rec, nil
}

// TranscriptEncoder writes length-prefixed msgpack transcript records.
// Not safe for concurrent use.
type TranscriptEncoder struct {
	writer io.Writer
}

// NewTranscriptEncoder creates a new transcript encoder.
func NewTranscriptEncoder(w io.Writer) *TranscriptEncoder {
	return &TranscriptEncoder{writer: w}
}

// WriteRecord encodes rec and writes it as a single frame.
func (e *TranscriptEncoder) WriteRecord(rec *TranscriptRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode transcript record: %w", err)
	}
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload))) //nolint:gosec // bounded by MaxPayloadSize
	copy(buf[LengthPrefixSize:], payload)
	if _, err := e.writer.Write(buf); err != nil {
		return fmt.Errorf("failed to write transcript frame: %w", err)
	}
	return nil
}

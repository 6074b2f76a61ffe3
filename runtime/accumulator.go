package runtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pithecene-io/turnstream/types"
)

// FenceSeparator delimits a code region in the explanation.
const FenceSeparator = "\n```\n"

// ErrErrorItem is returned when an ErrorItem is applied. Error items end the
// turn and are handled by the driver before they reach the accumulator.
var ErrErrorItem = errors.New("error items cannot be accumulated")

// DecoderState is the per-turn assembly state.
// Segments and AttributionMetadata only grow; RPCGlobalID is last write wins.
type DecoderState struct {
	Segments            []string
	InCodeRun           bool
	RPCGlobalID         int64
	AttributionMetadata []types.AttributionEntry
}

// Clone returns a deep copy.
func (s DecoderState) Clone() DecoderState {
	out := DecoderState{
		InCodeRun:   s.InCodeRun,
		RPCGlobalID: s.RPCGlobalID,
	}
	if s.Segments != nil {
		out.Segments = append([]string(nil), s.Segments...)
	}
	if s.AttributionMetadata != nil {
		out.AttributionMetadata = make([]types.AttributionEntry, len(s.AttributionMetadata))
		for i, entry := range s.AttributionMetadata {
			out.AttributionMetadata[i] = entry.Clone()
		}
	}
	return out
}

// Apply is the transition function of the decoder. It returns the next state
// and whether the explanation text changed. s is not modified.
func Apply(s DecoderState, item types.ResultItem) (DecoderState, bool, error) {
	next := s.Clone()
	updated, err := next.apply(item)
	if err != nil {
		return s, false, err
	}
	return next, updated, nil
}

func (s *DecoderState) apply(item types.ResultItem) (bool, error) {
	switch it := item.(type) {
	case types.MetadataItem:
		s.RPCGlobalID = it.RPCGlobalID
		if it.Attribution != nil {
			s.AttributionMetadata = append(s.AttributionMetadata, it.Attribution.Clone())
		}
		return false, nil

	case types.TextChunk:
		if it.Text == "" {
			return false, nil
		}
		if s.InCodeRun {
			s.Segments = append(s.Segments, FenceSeparator)
			s.InCodeRun = false
		}
		s.Segments = append(s.Segments, it.Text)
		return true, nil

	case types.CodeChunk:
		if it.Code == "" {
			return false, nil
		}
		if !s.InCodeRun {
			s.Segments = append(s.Segments, FenceSeparator)
			s.InCodeRun = true
		}
		s.Segments = append(s.Segments, it.Code)
		return true, nil

	case types.ErrorItem:
		return false, ErrErrorItem

	default:
		return false, fmt.Errorf("unsupported result item %T", item)
	}
}

// Render returns the explanation for s. An open code run is closed in the
// rendered text only; the stored state keeps it open.
func (s DecoderState) Render() string {
	var b strings.Builder
	for _, seg := range s.Segments {
		b.WriteString(seg)
	}
	if s.InCodeRun {
		b.WriteString(FenceSeparator)
	}
	return b.String()
}

// Accumulator owns the DecoderState of one turn.
// Not safe for concurrent use.
type Accumulator struct {
	state DecoderState
}

// NewAccumulator creates an accumulator with empty state.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Apply applies one item and reports whether the explanation changed.
// Empty text and code chunks are no-ops, so a fence never opens without content after it.
func (a *Accumulator) Apply(item types.ResultItem) (bool, error) {
	return a.state.apply(item)
}

// Render returns the current explanation.
func (a *Accumulator) Render() string {
	return a.state.Render()
}

// Snapshot returns a deep copy of the current response.
func (a *Accumulator) Snapshot() *types.AssembledResponse {
	attribution := make([]types.AttributionEntry, len(a.state.AttributionMetadata))
	for i, entry := range a.state.AttributionMetadata {
		attribution[i] = entry.Clone()
	}
	return &types.AssembledResponse{
		Explanation: a.state.Render(),
		Metadata: types.ResponseMetadata{
			RPCGlobalID:         a.state.RPCGlobalID,
			AttributionMetadata: attribution,
		},
	}
}

// State returns a copy of the decoder state.
func (a *Accumulator) State() DecoderState {
	return a.state.Clone()
}

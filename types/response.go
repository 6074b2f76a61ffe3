package types

import "fmt"

// AttributionAction describes how the response relates to external source material.
type AttributionAction string

// Attribution actions as they appear on the wire.
const (
	AttributionCite                AttributionAction = "CITE"
	AttributionBlock               AttributionAction = "BLOCK"
	AttributionNoAction            AttributionAction = "NO_ACTION"
	AttributionExemptFoundInPrompt AttributionAction = "EXEMPT_FOUND_IN_PROMPT"
	AttributionUnspecified         AttributionAction = "UNSPECIFIED"
)

// ParseAttributionAction validates a wire action. An empty action is UNSPECIFIED.
func ParseAttributionAction(s string) (AttributionAction, error) {
	switch a := AttributionAction(s); a {
	case AttributionCite, AttributionBlock, AttributionNoAction,
		AttributionExemptFoundInPrompt, AttributionUnspecified:
		return a, nil
	case "":
		return AttributionUnspecified, nil
	default:
		return "", fmt.Errorf("unknown attribution action %q", s)
	}
}

// Citation points at a span of the explanation that is backed by url.
type Citation struct {
	StartIndex int    `json:"startIndex" yaml:"start_index"`
	EndIndex   int    `json:"endIndex" yaml:"end_index"`
	URL        string `json:"url" yaml:"url"`
}

// AttributionEntry is one attribution record received in a metadata item.
type AttributionEntry struct {
	Action    AttributionAction `json:"action" yaml:"action"`
	Citations []Citation        `json:"citations,omitempty" yaml:"citations,omitempty"`
}

// Clone returns a deep copy.
func (a AttributionEntry) Clone() AttributionEntry {
	out := AttributionEntry{Action: a.Action}
	if a.Citations != nil {
		out.Citations = make([]Citation, len(a.Citations))
		copy(out.Citations, a.Citations)
	}
	return out
}

// ResponseMetadata is the out-of-band metadata accumulated for a turn.
type ResponseMetadata struct {
	// RPCGlobalID correlates the turn with external feedback submission.
	RPCGlobalID int64 `json:"rpcGlobalId" yaml:"rpc_global_id"`
	// AttributionMetadata holds one entry per metadata item that carried attribution, in arrival order.
	AttributionMetadata []AttributionEntry `json:"attributionMetadata" yaml:"attribution_metadata"`
}

// AssembledResponse is a snapshot of the turn at the moment it was yielded.
// Snapshots never share memory with the decoder that produced them.
type AssembledResponse struct {
	Explanation string           `json:"explanation" yaml:"explanation"`
	Metadata    ResponseMetadata `json:"metadata" yaml:"metadata"`
}

// CitationCount returns the number of citations across all attribution entries.
func (r *AssembledResponse) CitationCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, entry := range r.Metadata.AttributionMetadata {
		n += len(entry.Citations)
	}
	return n
}

package types

import "net/http"

// ConversationRequest describes one conversation turn to a transport.
// The assembler never inspects it; only channel implementations do.
type ConversationRequest struct {
	Prompt      string         `json:"prompt"`
	Model       string         `json:"model,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	SessionID   string         `json:"sessionId,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// TerminalStatus is the out-of-band status a channel reports for a turn.
type TerminalStatus struct {
	// StatusCode is the HTTP-like status of the exchange.
	StatusCode int `msgpack:"status_code" json:"status_code"`
	// Body is the response body for failing statuses, if the transport captured one.
	Body string `msgpack:"body,omitempty" json:"body,omitempty"`
	// Error is set when the transport itself failed to set up the exchange.
	Error string `msgpack:"error,omitempty" json:"error,omitempty"`
}

// IsOK returns true for a clean 200 status without a transport error.
func (s TerminalStatus) IsOK() bool {
	return s.Error == "" && s.StatusCode == http.StatusOK
}

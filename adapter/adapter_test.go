package adapter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/turnstream/types"
)

func TestNewTurnCompletedEvent(t *testing.T) {
	at := time.Date(2026, 10, 16, 14, 5, 0, 0, time.FixedZone("CEST", 2*3600))
	event := NewTurnCompletedEvent("turn-1", "https://api.example.test", at)

	if event.ContractVersion != types.ContractVersion {
		t.Errorf("ContractVersion = %q, want %q", event.ContractVersion, types.ContractVersion)
	}
	if event.EventType != EventTypeTurnCompleted {
		t.Errorf("EventType = %q, want %q", event.EventType, EventTypeTurnCompleted)
	}
	if event.Timestamp != "2026-10-16T12:05:00Z" {
		t.Errorf("Timestamp = %q, want UTC RFC 3339", event.Timestamp)
	}
}

func TestTurnCompletedEvent_JSONShape(t *testing.T) {
	event := NewTurnCompletedEvent("turn-1", "https://api.example.test", time.Unix(0, 0))
	event.Outcome = "completed"

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)

	for _, key := range []string{`"contract_version"`, `"event_type":"turn_completed"`, `"rpc_global_id":0`, `"outcome":"completed"`} {
		if !strings.Contains(s, key) {
			t.Errorf("payload %s missing %s", s, key)
		}
	}
	for _, key := range []string{`"session_id"`, `"error_kind"`} {
		if strings.Contains(s, key) {
			t.Errorf("payload %s should omit empty %s", s, key)
		}
	}
}

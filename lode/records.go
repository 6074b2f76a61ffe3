package lode

import (
	"maps"
	"time"

	"github.com/pithecene-io/turnstream/metrics"
	"github.com/pithecene-io/turnstream/types"
)

// RecordKind discriminator values.
const (
	RecordKindTurn    = "turn"
	RecordKindMetrics = "metrics"
)

// Event type partition values.
const (
	eventTypeTurn    = "turn"
	eventTypeMetrics = "metrics"
)

// TurnRecord is the content-free summary of one finished turn.
type TurnRecord struct {
	TurnID             string `json:"turn_id"`
	SessionID          string `json:"session_id,omitempty"`
	Outcome            string `json:"outcome"`
	ErrorKind          string `json:"error_kind,omitempty"`
	StatusCode         int    `json:"status_code,omitempty"`
	RPCGlobalID        int64  `json:"rpc_global_id"`
	Yields             int    `json:"yields"`
	FragmentsRead      int    `json:"fragments_read"`
	ExplanationBytes   int    `json:"explanation_bytes"`
	AttributionEntries int    `json:"attribution_entries"`
	CitationCount      int    `json:"citation_count"`
	DurationMs         int64  `json:"duration_ms"`
	Transport          string `json:"transport"`
}

// toTurnRecordMap converts a TurnRecord to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toTurnRecordMap(rec TurnRecord, cfg Config, completedAt time.Time) map[string]any {
	m := map[string]any{
		"record_kind":         RecordKindTurn,
		"contract_version":    types.ContractVersion,
		"turn_id":             rec.TurnID,
		"outcome":             rec.Outcome,
		"rpc_global_id":       rec.RPCGlobalID,
		"yields":              int64(rec.Yields),
		"fragments_read":      int64(rec.FragmentsRead),
		"explanation_bytes":   int64(rec.ExplanationBytes),
		"attribution_entries": int64(rec.AttributionEntries),
		"citation_count":      int64(rec.CitationCount),
		"duration_ms":         rec.DurationMs,
		"transport":           rec.Transport,
		"ts":                  completedAt.UTC().Format(time.RFC3339Nano),
		"event_type":          eventTypeTurn, // partition key
		"source":              cfg.Source,
		"category":            cfg.Category,
		"day":                 cfg.Day,
	}
	if rec.SessionID != "" {
		m["session_id"] = rec.SessionID
	}
	if rec.ErrorKind != "" {
		m["error_kind"] = rec.ErrorKind
	}
	if rec.StatusCode != 0 {
		m["status_code"] = int64(rec.StatusCode)
	}
	return m
}

// toMetricsRecordMap converts a metrics snapshot to a map for Lode storage.
func toMetricsRecordMap(snap metrics.Snapshot, cfg Config, completedAt time.Time) map[string]any {
	failures := make(map[string]int64, len(snap.FailuresByKind))
	maps.Copy(failures, snap.FailuresByKind)

	return map[string]any{
		"record_kind":      RecordKindMetrics,
		"contract_version": types.ContractVersion,
		"ts":               completedAt.UTC().Format(time.RFC3339Nano),

		"turns_started_total":   snap.TurnsStarted,
		"turns_completed_total": snap.TurnsCompleted,
		"turns_failed_total":    snap.TurnsFailed,
		"turns_canceled_total":  snap.TurnsCanceled,
		"failures_by_kind":      failures,

		"fragments_read_total":      snap.FragmentsRead,
		"fragments_discarded_total": snap.FragmentsDiscarded,
		"frames_parsed_total":       snap.FramesParsed,
		"items_applied_total":       snap.ItemsApplied,
		"responses_yielded_total":   snap.ResponsesYielded,
		"parse_errors_total":        snap.ParseErrors,

		"storage_write_success_total": snap.StorageWriteSuccess,
		"storage_write_failure_total": snap.StorageWriteFailure,
		"notify_success_total":        snap.NotifySuccess,
		"notify_failure_total":        snap.NotifyFailure,

		"endpoint":   snap.Endpoint,
		"transport":  snap.Transport,
		"event_type": eventTypeMetrics, // partition key
		"source":     cfg.Source,
		"category":   cfg.Category,
		"day":        cfg.Day,
		"turn_id":    cfg.TurnID,
	}
}

package lode

import (
	"context"
	"errors"
	"fmt"

	"github.com/justapithecus/lode/lode"
)

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// ErrNoTurnFound is returned when no turn records exist in the dataset.
var ErrNoTurnFound = errors.New("no turn records found")

// QueryLatestMetrics finds the most recent metrics record.
// Filters by turnID and source if non-empty.
// Returns the raw record map or ErrNoMetricsFound if none exist.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, turnID, source string) (map[string]any, error) {
	rec, err := queryLatest(ctx, ds, RecordKindMetrics, eventTypeMetrics, turnID, source)
	if errors.Is(err, errNoRecord) {
		return nil, ErrNoMetricsFound
	}
	return rec, err
}

// QueryLatestTurn finds the most recent turn record.
// Filters by turnID and source if non-empty.
// Returns the raw record map or ErrNoTurnFound if none exist.
func QueryLatestTurn(ctx context.Context, ds lode.Dataset, turnID, source string) (map[string]any, error) {
	rec, err := queryLatest(ctx, ds, RecordKindTurn, eventTypeTurn, turnID, source)
	if errors.Is(err, errNoRecord) {
		return nil, ErrNoTurnFound
	}
	return rec, err
}

var errNoRecord = errors.New("no record")

func queryLatest(ctx context.Context, ds lode.Dataset, kind, eventType, turnID, source string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, fmt.Sprintf("%s/snapshots", ds.ID()))
	}

	// Snapshots are ordered by creation time; walk latest first.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]

		if !snapshotHasEventType(snap, eventType) {
			continue
		}
		if !snapshotMatchesFilter(snap, "turn_id", turnID) {
			continue
		}
		if !snapshotMatchesFilter(snap, "source", source) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}

		// Manifest paths are a coarse pre-filter; record fields are authoritative.
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if record["record_kind"] != kind {
				continue
			}
			if turnID != "" && toString(record["turn_id"]) != turnID {
				continue
			}
			if source != "" && toString(record["source"]) != source {
				continue
			}
			return record, nil
		}
	}

	return nil, errNoRecord
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

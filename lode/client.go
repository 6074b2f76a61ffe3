package lode

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/turnstream/metrics"
)

// hivePartitions is the partition layout shared by the write and read paths.
var hivePartitions = []string{"source", "category", "day", "turn_id", "event_type"}

// LodeClient is a Lode-backed implementation of Client.
// Uses Lode's HiveLayout with partition keys: source/category/day/turn_id/event_type.
type LodeClient struct {
	dataset lode.Dataset
	config  Config

	mu sync.Mutex // serializes dataset writes
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return newClient(ds, cfg), nil
}

func newClient(ds lode.Dataset, cfg Config) *LodeClient {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	return &LodeClient{
		dataset: ds,
		config:  cfg,
	}
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	if id == "" {
		id = DefaultDataset
	}
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(hivePartitions...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteTurn writes the turn summary record to the event_type=turn partition.
func (c *LodeClient) WriteTurn(ctx context.Context, rec TurnRecord, completedAt time.Time) error {
	if rec.TurnID == "" {
		rec.TurnID = c.config.TurnID
	}
	record := toTurnRecordMap(rec, c.config, completedAt)
	return c.write(ctx, record, eventTypeTurn)
}

// WriteMetrics writes the metrics snapshot to the event_type=metrics partition.
func (c *LodeClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	record := toMetricsRecordMap(snap, c.config, completedAt)
	return c.write(ctx, record, eventTypeMetrics)
}

func (c *LodeClient) write(ctx context.Context, record map[string]any, eventType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.partitionPath(eventType))
	}
	return nil
}

// partitionPath renders the Hive partition a record lands in, for error context.
func (c *LodeClient) partitionPath(eventType string) string {
	return "source=" + c.config.Source +
		"/category=" + c.config.Category +
		"/day=" + c.config.Day +
		"/turn_id=" + c.config.TurnID +
		"/event_type=" + eventType
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)

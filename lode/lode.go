// Package lode persists content-free turn records and metrics to Lode.
//
// Records never carry prompt or response text. A turn record holds counts,
// sizes, and the outcome; a metrics record holds the collector snapshot.
package lode

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/turnstream/metrics"
)

// DefaultDataset is the Lode dataset ID used by turnstream.
const DefaultDataset = "turnstream"

// DeriveDay computes the partition day from the turn start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds partition keys for one turn's records.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Source is the partition key for the backend the turn ran against.
	Source string
	// Category is the partition key for the logical kind of turn.
	Category string
	// Day is the partition key derived from the turn start time (YYYY-MM-DD UTC).
	Day string
	// TurnID is the partition key for the turn identifier.
	TurnID string
}

// Client persists turn records.
type Client interface {
	// WriteTurn writes one turn summary record.
	WriteTurn(ctx context.Context, rec TurnRecord, completedAt time.Time) error

	// WriteMetrics writes one metrics snapshot record.
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error

	// Close releases client resources.
	Close() error
}

// StubClient records writes in memory. Err, if set, fails every write.
type StubClient struct {
	Err error

	mu      sync.Mutex
	Turns   []TurnRecord
	Metrics []metrics.Snapshot
	Closed  bool
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// WriteTurn implements Client.
func (c *StubClient) WriteTurn(_ context.Context, rec TurnRecord, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Turns = append(c.Turns, rec)
	return nil
}

// WriteMetrics implements Client.
func (c *StubClient) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Metrics = append(c.Metrics, snap)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Verify StubClient implements Client.
var _ Client = (*StubClient)(nil)

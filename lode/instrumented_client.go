package lode

import (
	"context"
	"time"

	"github.com/pithecene-io/turnstream/metrics"
)

// InstrumentedClient wraps a Client and records storage write metrics.
// Each write increments storage_write_success or storage_write_failure.
type InstrumentedClient struct {
	inner     Client
	collector *metrics.Collector
}

// NewInstrumentedClient wraps a client with metrics instrumentation.
func NewInstrumentedClient(inner Client, collector *metrics.Collector) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, collector: collector}
}

// WriteTurn delegates to the inner client and records success or failure.
func (c *InstrumentedClient) WriteTurn(ctx context.Context, rec TurnRecord, completedAt time.Time) error {
	err := c.inner.WriteTurn(ctx, rec, completedAt)
	c.record(err)
	return err
}

// WriteMetrics delegates to the inner client and records success or failure.
// The snapshot is taken by the caller, so this write is counted in the
// collector but not in the stored record.
func (c *InstrumentedClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, completedAt time.Time) error {
	err := c.inner.WriteMetrics(ctx, snap, completedAt)
	c.record(err)
	return err
}

func (c *InstrumentedClient) record(err error) {
	if err != nil {
		c.collector.IncStorageWriteFailure()
	} else {
		c.collector.IncStorageWriteSuccess()
	}
}

// Close delegates to the inner client.
func (c *InstrumentedClient) Close() error {
	return c.inner.Close()
}

// Verify InstrumentedClient implements Client.
var _ Client = (*InstrumentedClient)(nil)

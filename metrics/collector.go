// Package metrics provides per-turn metrics collection.
//
// The Collector accumulates counters while a conversation turn streams. It is
// a leaf package with no internal dependencies; failure kinds are recorded as
// plain strings so the runtime package can feed it without an import cycle.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all turn metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Turn lifecycle
	TurnsStarted   int64
	TurnsCompleted int64
	TurnsFailed    int64
	TurnsCanceled  int64
	FailuresByKind map[string]int64

	// Stream
	FragmentsRead      int64
	FragmentsDiscarded int64
	FramesParsed       int64
	ItemsApplied       int64
	ResponsesYielded   int64
	ParseErrors        int64

	// Storage
	StorageWriteSuccess int64
	StorageWriteFailure int64

	// Notifications
	NotifySuccess int64
	NotifyFailure int64

	// Dimensions (informational, set at construction)
	Endpoint  string
	Transport string
	TurnID    string
}

// Collector accumulates metrics during a single turn.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	turnsStarted   int64
	turnsCompleted int64
	turnsFailed    int64
	turnsCanceled  int64
	failuresByKind map[string]int64

	fragmentsRead      int64
	fragmentsDiscarded int64
	framesParsed       int64
	itemsApplied       int64
	responsesYielded   int64
	parseErrors        int64

	storageWriteSuccess int64
	storageWriteFailure int64

	notifySuccess int64
	notifyFailure int64

	endpoint  string
	transport string
	turnID    string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(endpoint, transport, turnID string) *Collector {
	return &Collector{
		failuresByKind: make(map[string]int64),
		endpoint:       endpoint,
		transport:      transport,
		turnID:         turnID,
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Turn lifecycle ---

// IncTurnStarted records a turn start.
func (c *Collector) IncTurnStarted() {
	if c == nil {
		return
	}
	c.inc(&c.turnsStarted)
}

// IncTurnCompleted records a turn that reached end-of-stream cleanly.
func (c *Collector) IncTurnCompleted() {
	if c == nil {
		return
	}
	c.inc(&c.turnsCompleted)
}

// IncTurnFailed records a failed turn and its error kind.
func (c *Collector) IncTurnFailed(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.turnsFailed++
	c.failuresByKind[kind]++
	c.mu.Unlock()
}

// IncTurnCanceled records a turn abandoned by its caller.
func (c *Collector) IncTurnCanceled() {
	if c == nil {
		return
	}
	c.inc(&c.turnsCanceled)
}

// --- Stream ---

// IncFragmentsRead records one fragment returned by the channel.
func (c *Collector) IncFragmentsRead() {
	if c == nil {
		return
	}
	c.inc(&c.fragmentsRead)
}

// IncFragmentsDiscarded records an empty fragment.
func (c *Collector) IncFragmentsDiscarded() {
	if c == nil {
		return
	}
	c.inc(&c.fragmentsDiscarded)
}

// IncFramesParsed records a fragment that repaired and parsed.
func (c *Collector) IncFramesParsed() {
	if c == nil {
		return
	}
	c.inc(&c.framesParsed)
}

// AddItemsApplied records n items applied to the accumulator.
func (c *Collector) AddItemsApplied(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.mu.Lock()
	c.itemsApplied += int64(n)
	c.mu.Unlock()
}

// IncResponsesYielded records one snapshot handed to the caller.
func (c *Collector) IncResponsesYielded() {
	if c == nil {
		return
	}
	c.inc(&c.responsesYielded)
}

// IncParseErrors records a fragment or object that failed to decode.
func (c *Collector) IncParseErrors() {
	if c == nil {
		return
	}
	c.inc(&c.parseErrors)
}

// --- Storage ---

// IncStorageWriteSuccess records a successful turn metrics write.
func (c *Collector) IncStorageWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.storageWriteSuccess)
}

// IncStorageWriteFailure records a failed turn metrics write.
func (c *Collector) IncStorageWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.storageWriteFailure)
}

// --- Notifications ---

// IncNotifySuccess records a delivered turn_completed notification.
func (c *Collector) IncNotifySuccess() {
	if c == nil {
		return
	}
	c.inc(&c.notifySuccess)
}

// IncNotifyFailure records a turn_completed notification that failed to publish.
func (c *Collector) IncNotifyFailure() {
	if c == nil {
		return
	}
	c.inc(&c.notifyFailure)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	failures := make(map[string]int64, len(c.failuresByKind))
	for k, v := range c.failuresByKind {
		failures[k] = v
	}

	return Snapshot{
		TurnsStarted:   c.turnsStarted,
		TurnsCompleted: c.turnsCompleted,
		TurnsFailed:    c.turnsFailed,
		TurnsCanceled:  c.turnsCanceled,
		FailuresByKind: failures,

		FragmentsRead:      c.fragmentsRead,
		FragmentsDiscarded: c.fragmentsDiscarded,
		FramesParsed:       c.framesParsed,
		ItemsApplied:       c.itemsApplied,
		ResponsesYielded:   c.responsesYielded,
		ParseErrors:        c.parseErrors,

		StorageWriteSuccess: c.storageWriteSuccess,
		StorageWriteFailure: c.storageWriteFailure,

		NotifySuccess: c.notifySuccess,
		NotifyFailure: c.notifyFailure,

		Endpoint:  c.endpoint,
		Transport: c.transport,
		TurnID:    c.turnID,
	}
}

package runtime

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"time"

	"github.com/pithecene-io/turnstream/channel"
	"github.com/pithecene-io/turnstream/ipc"
	"github.com/pithecene-io/turnstream/log"
	"github.com/pithecene-io/turnstream/metrics"
	"github.com/pithecene-io/turnstream/types"
)

// State is the lifecycle state of a ConversationDriver.
type State int

const (
	// StateIdle means the channel has not been opened yet.
	StateIdle State = iota
	// StateStreaming means fragments are being read.
	StateStreaming
	// StateCompleted means the stream ended cleanly.
	StateCompleted
	// StateFailed means the turn was aborted by an error.
	StateFailed
	// StateClosed means the caller abandoned the turn.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true once the driver can make no further progress.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateClosed
}

// DriverOption configures a ConversationDriver.
type DriverOption func(*ConversationDriver)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *log.Logger) DriverOption {
	return func(d *ConversationDriver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithCollector sets the metrics collector. A nil collector records nothing.
func WithCollector(c *metrics.Collector) DriverOption {
	return func(d *ConversationDriver) {
		d.collector = c
	}
}

// WithTurnMeta sets the turn identity. Defaults to a fresh TurnMeta.
func WithTurnMeta(meta *types.TurnMeta) DriverOption {
	return func(d *ConversationDriver) {
		if meta != nil {
			d.meta = meta
		}
	}
}

// TurnSummary is a content-free account of a finished turn.
type TurnSummary struct {
	TurnID             string
	SessionID          *string
	Outcome            *types.TurnOutcome
	ErrorKind          ErrorKind
	RPCGlobalID        int64
	Yields             int
	FragmentsRead      int
	ExplanationBytes   int
	AttributionEntries int
	CitationCount      int
	StartedAt          time.Time
	Duration           time.Duration
}

// ConversationDriver runs one conversation turn.
//
// The driver opens its channel lazily on the first call to Next, reads one
// fragment at a time, and yields a snapshot after every fragment that changed
// the explanation. A failing terminal status is checked before every read and
// after every read returns. The channel is closed on every exit path.
//
// Next, Snapshot and DecoderState must be called from a single goroutine.
// Close may be called from any goroutine. A driver is not restartable.
type ConversationDriver struct {
	opener    channel.Opener
	req       *types.ConversationRequest
	meta      *types.TurnMeta
	logger    *log.Logger
	collector *metrics.Collector
	acc       *Accumulator

	mu        sync.Mutex
	state     State
	ch        channel.Channel
	err       error
	outcome   *types.TurnOutcome
	startedAt time.Time
	duration  time.Duration

	closeOnce sync.Once
	closeErr  error

	statusMu sync.Mutex
	status   *types.TerminalStatus

	yields    int // guarded by mu
	fragments int // guarded by mu
}

// NewConversationDriver creates a driver for one turn of req over channels from opener.
func NewConversationDriver(opener channel.Opener, req *types.ConversationRequest, opts ...DriverOption) *ConversationDriver {
	d := &ConversationDriver{
		opener: opener,
		req:    req,
		logger: log.NewNop(),
		acc:    NewAccumulator(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.meta == nil {
		sessionID := ""
		if req != nil {
			sessionID = req.SessionID
		}
		d.meta = types.NewTurnMeta(sessionID)
	}
	return d
}

// Next returns the next snapshot of the response.
//
// Returns:
//   - snapshot, nil: the explanation changed
//   - nil, io.EOF: the stream ended cleanly
//   - nil, *TurnError: the turn failed or was canceled
//
// Once the driver is terminal, Next keeps returning the same result.
func (d *ConversationDriver) Next(ctx context.Context) (*types.AssembledResponse, error) {
	d.mu.Lock()
	state := d.state
	err := d.err
	d.mu.Unlock()

	switch state {
	case StateCompleted:
		return nil, io.EOF
	case StateFailed, StateClosed:
		return nil, err
	case StateIdle:
		if err := d.start(ctx); err != nil {
			return nil, err
		}
	}

	for {
		if err := d.checkStatus(); err != nil {
			return nil, d.finish(StateFailed, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, d.cancel(err)
		}

		fragment, readErr := d.ch.Read(ctx)

		if err := d.terminalError(); err != nil {
			return nil, err
		}
		if err := d.checkStatus(); err != nil {
			return nil, d.finish(StateFailed, err)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				d.finish(StateCompleted, nil)
				return nil, io.EOF
			}
			if ctx.Err() != nil {
				return nil, d.cancel(ctx.Err())
			}
			return nil, d.finish(StateFailed, &TurnError{
				Kind:    ErrorTransportSetup,
				Message: "channel read failed",
				Err:     readErr,
			})
		}

		d.mu.Lock()
		d.fragments++
		d.mu.Unlock()
		d.collector.IncFragmentsRead()

		resp, err := d.process(fragment)
		if err != nil {
			return nil, d.finish(StateFailed, err)
		}
		if resp != nil {
			d.mu.Lock()
			d.yields++
			d.mu.Unlock()
			d.collector.IncResponsesYielded()
			return resp, nil
		}
	}
}

// Responses returns the turn as a sequence of snapshots. The sequence ends
// after the stream completes or after yielding the terminal error. Breaking
// out of the loop closes the channel.
func (d *ConversationDriver) Responses(ctx context.Context) iter.Seq2[*types.AssembledResponse, error] {
	return func(yield func(*types.AssembledResponse, error) bool) {
		for {
			resp, err := d.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(resp, nil) {
				_ = d.Close()
				return
			}
		}
	}
}

// StreamConversation runs one turn of req and returns its snapshots.
func StreamConversation(ctx context.Context, opener channel.Opener, req *types.ConversationRequest, opts ...DriverOption) iter.Seq2[*types.AssembledResponse, error] {
	return NewConversationDriver(opener, req, opts...).Responses(ctx)
}

// Close abandons the turn and closes the channel. Closing a terminal driver
// only releases the channel. Safe to call multiple times.
func (d *ConversationDriver) Close() error {
	d.mu.Lock()
	state := d.state
	if state == StateIdle {
		d.state = StateClosed
		d.err = &TurnError{Kind: ErrorCanceled, Message: "driver closed before start"}
		d.outcome = DetermineOutcome(d.err)
	}
	d.mu.Unlock()

	if state == StateStreaming {
		d.finish(StateClosed, &TurnError{Kind: ErrorCanceled, Message: "driver closed"})
	}
	d.closeChannel()
	return d.closeErr
}

// State returns the lifecycle state.
func (d *ConversationDriver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Snapshot returns a copy of the current response, whether or not it was yielded.
func (d *ConversationDriver) Snapshot() *types.AssembledResponse {
	return d.acc.Snapshot()
}

// DecoderState returns a copy of the accumulator state.
func (d *ConversationDriver) DecoderState() DecoderState {
	return d.acc.State()
}

// Outcome returns the turn outcome, or nil while the turn is running.
func (d *ConversationDriver) Outcome() *types.TurnOutcome {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.outcome
}

// Err returns the terminal error, or nil if the turn completed or is running.
func (d *ConversationDriver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// TurnMeta returns the turn identity.
func (d *ConversationDriver) TurnMeta() *types.TurnMeta {
	return d.meta
}

// Summary returns a content-free account of the turn so far.
func (d *ConversationDriver) Summary() TurnSummary {
	snap := d.acc.Snapshot()

	d.mu.Lock()
	defer d.mu.Unlock()
	duration := d.duration
	if !d.state.IsTerminal() && !d.startedAt.IsZero() {
		duration = time.Since(d.startedAt)
	}
	return TurnSummary{
		TurnID:             d.meta.TurnID,
		SessionID:          d.meta.SessionID,
		Outcome:            d.outcome,
		ErrorKind:          KindOf(d.err),
		RPCGlobalID:        snap.Metadata.RPCGlobalID,
		Yields:             d.yields,
		FragmentsRead:      d.fragments,
		ExplanationBytes:   len(snap.Explanation),
		AttributionEntries: len(snap.Metadata.AttributionMetadata),
		CitationCount:      snap.CitationCount(),
		StartedAt:          d.startedAt,
		Duration:           duration,
	}
}

func (d *ConversationDriver) start(ctx context.Context) error {
	d.mu.Lock()
	d.state = StateStreaming
	d.startedAt = time.Now()
	d.mu.Unlock()

	d.collector.IncTurnStarted()
	d.logger.Info("turn started", nil)

	if err := ctx.Err(); err != nil {
		return d.cancel(err)
	}

	ch, err := d.opener.Open(ctx, d.req, d.onStatus)
	if err != nil {
		if ctx.Err() != nil {
			return d.cancel(ctx.Err())
		}
		return d.finish(StateFailed, &TurnError{
			Kind:    ErrorTransportSetup,
			Message: "failed to open channel",
			Err:     err,
		})
	}

	d.mu.Lock()
	if d.state.IsTerminal() {
		// Closed while opening.
		err := d.err
		d.mu.Unlock()
		_ = ch.Close()
		return err
	}
	d.ch = ch
	d.mu.Unlock()
	return nil
}

// process decodes one fragment and applies its items. It returns a snapshot
// when the explanation changed.
func (d *ConversationDriver) process(fragment string) (*types.AssembledResponse, error) {
	frame, err := ipc.Normalize(fragment)
	if err != nil {
		d.collector.IncParseErrors()
		return nil, &TurnError{Kind: ErrorParse, Err: err}
	}
	if frame == nil {
		d.collector.IncFragmentsDiscarded()
		d.logger.Debug("fragment discarded", map[string]any{
			"fragment_bytes": len(fragment),
		})
		return nil, nil
	}
	d.collector.IncFramesParsed()

	items, decodeErr := ipc.DecodeFrame(frame)
	d.logger.Debug("frame parsed", map[string]any{
		"objects": len(frame),
		"items":   len(items),
	})

	updated := false
	applied := 0
	defer func() { d.collector.AddItemsApplied(applied) }()
	for _, item := range items {
		if errItem, ok := item.(types.ErrorItem); ok {
			return nil, &TurnError{Kind: ErrorServer, Message: errItem.Message}
		}
		changed, err := d.acc.Apply(item)
		if err != nil {
			return nil, &TurnError{Kind: ErrorUnknownResultKind, Err: err}
		}
		applied++
		updated = updated || changed
	}

	if decodeErr != nil {
		if ipc.IsUnknownKindError(decodeErr) {
			return nil, &TurnError{Kind: ErrorUnknownResultKind, Err: decodeErr}
		}
		d.collector.IncParseErrors()
		return nil, &TurnError{Kind: ErrorParse, Err: decodeErr}
	}

	if !updated {
		return nil, nil
	}
	return d.acc.Snapshot(), nil
}

func (d *ConversationDriver) onStatus(status types.TerminalStatus) {
	if status.IsOK() {
		return
	}
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	if d.status == nil {
		s := status
		d.status = &s
	}
}

// checkStatus converts the first failing status into a TurnError.
func (d *ConversationDriver) checkStatus() error {
	d.statusMu.Lock()
	status := d.status
	d.statusMu.Unlock()

	switch {
	case status == nil:
		return nil
	case status.Error != "":
		return &TurnError{Kind: ErrorTransportSetup, Message: status.Error, StatusCode: status.StatusCode}
	case status.StatusCode == 403:
		return &TurnError{Kind: ErrorPermissionDenied, StatusCode: status.StatusCode, Body: status.Body}
	default:
		return &TurnError{Kind: ErrorUnexpectedStatus, StatusCode: status.StatusCode, Body: status.Body}
	}
}

// terminalError returns the stored error if the driver became terminal
// while a read was in flight.
func (d *ConversationDriver) terminalError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.state.IsTerminal() {
		return nil
	}
	if d.state == StateCompleted {
		return io.EOF
	}
	return d.err
}

func (d *ConversationDriver) cancel(cause error) error {
	return d.finish(StateClosed, &TurnError{Kind: ErrorCanceled, Message: "turn canceled", Err: cause})
}

// finish moves the driver to a terminal state and closes the channel.
// The first terminal transition wins; later calls return its error.
func (d *ConversationDriver) finish(state State, err error) error {
	d.mu.Lock()
	if d.state.IsTerminal() {
		prev := d.err
		d.mu.Unlock()
		return prev
	}
	d.state = state
	d.err = err
	d.outcome = DetermineOutcome(err)
	d.duration = time.Since(d.startedAt)
	fields := map[string]any{
		"outcome":        string(d.outcome.Status),
		"yields":         d.yields,
		"fragments_read": d.fragments,
		"duration_ms":    d.duration.Milliseconds(),
	}
	d.mu.Unlock()

	d.closeChannel()

	switch state {
	case StateCompleted:
		d.collector.IncTurnCompleted()
		d.logger.Info("turn completed", fields)
	case StateClosed:
		d.collector.IncTurnCanceled()
		d.logger.Info("turn canceled", fields)
	default:
		kind := KindOf(err)
		d.collector.IncTurnFailed(string(kind))
		fields["error_kind"] = string(kind)
		fields["error"] = err.Error()
		d.logger.Error("turn failed", fields)
	}
	return err
}

func (d *ConversationDriver) closeChannel() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		ch := d.ch
		d.mu.Unlock()
		if ch != nil {
			d.closeErr = ch.Close()
		}
	})
}

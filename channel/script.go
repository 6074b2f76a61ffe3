package channel

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/pithecene-io/turnstream/types"
)

type stepKind int

const (
	stepFragment stepKind = iota
	stepStatus
	stepGate
	stepEnd
	stepFail
)

// Step is one scripted channel event.
type Step struct {
	kind     stepKind
	fragment string
	status   types.TerminalStatus
	gate     <-chan struct{}
	err      error
}

// Fragment delivers one raw fragment.
func Fragment(s string) Step {
	return Step{kind: stepFragment, fragment: s}
}

// Status reports a terminal status with an optional body.
func Status(code int, body string) Step {
	return Step{kind: stepStatus, status: types.TerminalStatus{StatusCode: code, Body: body}}
}

// TransportError reports a transport-level failure.
func TransportError(msg string) Step {
	return Step{kind: stepStatus, status: types.TerminalStatus{StatusCode: http.StatusOK, Error: msg}}
}

// Gate blocks the next read until ch is closed, the channel is closed, or the read's context is done.
func Gate(ch <-chan struct{}) Step {
	return Step{kind: stepGate, gate: ch}
}

// End ends the stream. Steps after End are never delivered.
func End() Step {
	return Step{kind: stepEnd}
}

// Fail makes the read return err.
func Fail(err error) Step {
	return Step{kind: stepFail, err: err}
}

// ScriptOpener opens in-memory channels that replay a fixed list of steps.
// Leading Status steps are reported during Open. Running out of steps is end-of-stream.
type ScriptOpener struct {
	steps   []Step
	openErr error

	mu       sync.Mutex
	channels []*ScriptChannel
	requests []*types.ConversationRequest
}

var _ Opener = (*ScriptOpener)(nil)

// NewScriptOpener creates an opener that plays steps on every Open.
func NewScriptOpener(steps ...Step) *ScriptOpener {
	return &ScriptOpener{steps: steps}
}

// FailOpen makes every Open return err.
func (o *ScriptOpener) FailOpen(err error) *ScriptOpener {
	o.openErr = err
	return o
}

// Open implements Opener.
func (o *ScriptOpener) Open(ctx context.Context, req *types.ConversationRequest, onStatus StatusFunc) (Channel, error) {
	o.mu.Lock()
	o.requests = append(o.requests, req)
	o.mu.Unlock()

	if o.openErr != nil {
		return nil, o.openErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := &ScriptChannel{
		steps:    o.steps,
		onStatus: onStatus,
		closed:   make(chan struct{}),
	}
	for ch.pos < len(ch.steps) && ch.steps[ch.pos].kind == stepStatus {
		onStatus(ch.steps[ch.pos].status)
		ch.pos++
	}

	o.mu.Lock()
	o.channels = append(o.channels, ch)
	o.mu.Unlock()
	return ch, nil
}

// Opens returns the number of Open calls.
func (o *ScriptOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.requests)
}

// Last returns the most recently opened channel, or nil.
func (o *ScriptOpener) Last() *ScriptChannel {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.channels) == 0 {
		return nil
	}
	return o.channels[len(o.channels)-1]
}

// ScriptChannel is a channel opened by ScriptOpener.
type ScriptChannel struct {
	steps    []Step
	onStatus StatusFunc
	closed   chan struct{}

	mu     sync.Mutex
	pos    int
	ended  bool
	reads  int
	closes int
}

var _ Channel = (*ScriptChannel)(nil)

// Read implements Channel.
func (c *ScriptChannel) Read(ctx context.Context) (string, error) {
	for {
		select {
		case <-c.closed:
			return "", ErrClosed
		default:
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		c.mu.Lock()
		if c.ended || c.pos >= len(c.steps) {
			c.ended = true
			c.mu.Unlock()
			return "", io.EOF
		}
		step := c.steps[c.pos]
		c.pos++
		switch step.kind {
		case stepFragment:
			c.reads++
			c.mu.Unlock()
			return step.fragment, nil
		case stepEnd:
			c.ended = true
			c.mu.Unlock()
			return "", io.EOF
		case stepFail:
			c.mu.Unlock()
			return "", step.err
		}
		c.mu.Unlock()

		switch step.kind {
		case stepStatus:
			c.onStatus(step.status)
		case stepGate:
			select {
			case <-step.gate:
			case <-c.closed:
				return "", ErrClosed
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
}

// ReportStatus delivers a status out of band, as a transport goroutine would.
func (c *ScriptChannel) ReportStatus(status types.TerminalStatus) {
	c.onStatus(status)
}

// Close implements Channel.
func (c *ScriptChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes == 0 {
		close(c.closed)
	}
	c.closes++
	return nil
}

// Reads returns the number of fragments delivered.
func (c *ScriptChannel) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

// Closed reports whether Close was called.
func (c *ScriptChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes > 0
}

// CloseCount returns the number of Close calls.
func (c *ScriptChannel) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

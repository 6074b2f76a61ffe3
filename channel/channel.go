// Package channel defines the transport boundary of a conversation turn and
// provides concrete transports.
//
// A Channel delivers raw fragments through a pull Read and reports the
// exchange's terminal status out of band through a StatusFunc registered at
// Open. Push-style transports hand fragments over through a Bridge so that
// at most one read is ever outstanding.
package channel

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pithecene-io/turnstream/types"
)

// ErrClosed is returned by reads and pushes on a closed channel.
var ErrClosed = errors.New("channel closed")

// StatusFunc receives terminal statuses. It may be called from any goroutine,
// including during Open.
type StatusFunc func(types.TerminalStatus)

// Channel is one open exchange.
type Channel interface {
	// Read returns the next raw fragment, or io.EOF at end-of-stream.
	Read(ctx context.Context) (string, error)
	// Close releases the exchange. Safe to call multiple times.
	Close() error
}

// Opener opens a channel for one conversation turn.
type Opener interface {
	Open(ctx context.Context, req *types.ConversationRequest, onStatus StatusFunc) (Channel, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, req *types.ConversationRequest, onStatus StatusFunc) (Channel, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, req *types.ConversationRequest, onStatus StatusFunc) (Channel, error) {
	return f(ctx, req, onStatus)
}

// Bridge is a single-slot rendezvous between a pushing producer and a pulling
// reader. Push blocks until a reader takes the fragment, so a producer is
// never more than one fragment ahead of the reader.
type Bridge struct {
	slot      chan string
	ended     chan struct{}
	closed    chan struct{}
	endOnce   sync.Once
	closeOnce sync.Once
}

var _ Channel = (*Bridge)(nil)

// NewBridge creates an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{
		slot:   make(chan string),
		ended:  make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Push hands one fragment to the reader.
// Returns ErrClosed if the bridge is closed or ended, or ctx.Err() if ctx is done first.
func (b *Bridge) Push(ctx context.Context, fragment string) error {
	select {
	case <-b.closed:
		return ErrClosed
	case <-b.ended:
		return ErrClosed
	default:
	}

	select {
	case b.slot <- fragment:
		return nil
	case <-b.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End marks end-of-stream. Reads return io.EOF afterwards. Safe to call multiple times.
func (b *Bridge) End() {
	b.endOnce.Do(func() { close(b.ended) })
}

// Read takes the next fragment, blocking until one is pushed, the stream
// ends, the bridge is closed, or ctx is done.
func (b *Bridge) Read(ctx context.Context) (string, error) {
	select {
	case <-b.closed:
		return "", ErrClosed
	default:
	}

	select {
	case fragment := <-b.slot:
		return fragment, nil
	case <-b.ended:
		return "", io.EOF
	case <-b.closed:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close unblocks producers and readers. Safe to call multiple times.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

// Done is closed when the bridge is closed.
func (b *Bridge) Done() <-chan struct{} {
	return b.closed
}

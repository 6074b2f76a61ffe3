package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pithecene-io/turnstream/ipc"
	"github.com/pithecene-io/turnstream/types"
)

// ReplayOpener plays back a transcript written by RecordingOpener.
// A transcript can be opened once.
type ReplayOpener struct {
	reader io.Reader
	mu     sync.Mutex
	opened bool
}

var _ Opener = (*ReplayOpener)(nil)

// NewReplayOpener creates an opener over a transcript stream.
func NewReplayOpener(r io.Reader) *ReplayOpener {
	return &ReplayOpener{reader: r}
}

// Open reports the transcript's leading status records before returning, the
// way a live transport reports response headers. The request is ignored.
func (o *ReplayOpener) Open(ctx context.Context, _ *types.ConversationRequest, onStatus StatusFunc) (Channel, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.opened {
		return nil, errors.New("transcript already replayed")
	}
	o.opened = true

	ch := &replayChannel{decoder: ipc.NewTranscriptDecoder(o.reader), onStatus: onStatus}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := ch.next()
		if err != nil {
			return nil, err
		}
		if rec == nil {
			ch.ended = true
			return ch, nil
		}
		if rec.Type != ipc.RecordStatus {
			ch.pending = rec
			return ch, nil
		}
		onStatus(*rec.Status)
	}
}

type replayChannel struct {
	decoder  *ipc.TranscriptDecoder
	onStatus StatusFunc
	pending  *ipc.TranscriptRecord
	ended    bool

	mu     sync.Mutex
	closed bool
}

// next returns the next record, or nil at the end of the transcript.
func (c *replayChannel) next() (*ipc.TranscriptRecord, error) {
	rec, err := c.decoder.ReadRecord()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: %w", err)
	}
	return rec, nil
}

func (c *replayChannel) Read(ctx context.Context) (string, error) {
	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return "", ErrClosed
		}
		if c.ended {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		rec := c.pending
		c.pending = nil
		if rec == nil {
			var err error
			rec, err = c.next()
			if err != nil {
				return "", err
			}
		}

		if rec == nil {
			c.ended = true
			return "", io.EOF
		}
		switch rec.Type {
		case ipc.RecordFragment:
			return rec.Fragment, nil
		case ipc.RecordStatus:
			c.onStatus(*rec.Status)
		case ipc.RecordEnd:
			c.ended = true
			return "", io.EOF
		}
	}
}

func (c *replayChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

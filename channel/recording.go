package channel

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pithecene-io/turnstream/ipc"
	"github.com/pithecene-io/turnstream/types"
)

// RecordingOpener wraps another Opener and writes every status, fragment,
// and end-of-stream it observes to a transcript. The transcript can be
// played back with ReplayOpener.
//
// Recording failures never affect the turn; the first one is kept for Err.
type RecordingOpener struct {
	inner Opener

	mu      sync.Mutex
	encoder *ipc.TranscriptEncoder
	err     error
}

var _ Opener = (*RecordingOpener)(nil)

// NewRecordingOpener records inner's channels to w.
func NewRecordingOpener(inner Opener, w io.Writer) *RecordingOpener {
	return &RecordingOpener{inner: inner, encoder: ipc.NewTranscriptEncoder(w)}
}

// Open implements Opener.
func (o *RecordingOpener) Open(ctx context.Context, req *types.ConversationRequest, onStatus StatusFunc) (Channel, error) {
	recordStatus := func(status types.TerminalStatus) {
		s := status
		o.record(&ipc.TranscriptRecord{Type: ipc.RecordStatus, Status: &s})
		onStatus(status)
	}

	ch, err := o.inner.Open(ctx, req, recordStatus)
	if err != nil {
		return nil, err
	}
	return &recordingChannel{inner: ch, opener: o}, nil
}

// Err returns the first recording failure, if any.
func (o *RecordingOpener) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

func (o *RecordingOpener) record(rec *ipc.TranscriptRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return
	}
	o.err = o.encoder.WriteRecord(rec)
}

type recordingChannel struct {
	inner  Channel
	opener *RecordingOpener
	once   sync.Once
}

func (c *recordingChannel) Read(ctx context.Context) (string, error) {
	fragment, err := c.inner.Read(ctx)
	switch {
	case err == nil:
		c.opener.record(&ipc.TranscriptRecord{Type: ipc.RecordFragment, Fragment: fragment})
	case errors.Is(err, io.EOF):
		c.once.Do(func() {
			c.opener.record(&ipc.TranscriptRecord{Type: ipc.RecordEnd})
		})
	}
	return fragment, err
}

func (c *recordingChannel) Close() error {
	return c.inner.Close()
}

package channel

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/pithecene-io/turnstream/types"
)

func TestBridge_DeliversInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBridge()
	ctx := context.Background()
	fragments := []string{"[", `{"textChunk":{"text":"a"}}`, "]"}

	go func() {
		for _, f := range fragments {
			if err := b.Push(ctx, f); err != nil {
				return
			}
		}
		b.End()
	}()

	var got []string
	for {
		f, err := b.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, f)
	}
	assert.Equal(t, fragments, got)

	// End is sticky.
	_, err := b.Read(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestBridge_PushBlocksUntilRead(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBridge()
	pushed := make(chan error, 1)
	go func() {
		pushed <- b.Push(context.Background(), "x")
	}()

	select {
	case <-pushed:
		t.Fatal("Push returned before any Read")
	case <-time.After(50 * time.Millisecond):
	}

	f, err := b.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", f)
	assert.NoError(t, <-pushed)
}

func TestBridge_CloseUnblocksProducer(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBridge()
	pushed := make(chan error, 1)
	go func() {
		pushed <- b.Push(context.Background(), "x")
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Close())
	assert.ErrorIs(t, <-pushed, ErrClosed)

	// Idempotent.
	require.NoError(t, b.Close())
	_, err := b.Read(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBridge_CloseUnblocksReader(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBridge()
	read := make(chan error, 1)
	go func() {
		_, err := b.Read(context.Background())
		read <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Close())
	assert.ErrorIs(t, <-read, ErrClosed)
}

func TestBridge_ReadHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBridge()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBridge_PushAfterEnd(t *testing.T) {
	b := NewBridge()
	b.End()
	b.End()

	err := b.Push(context.Background(), "late")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenerFunc(t *testing.T) {
	called := false
	var opener Opener = OpenerFunc(func(_ context.Context, _ *types.ConversationRequest, _ StatusFunc) (Channel, error) {
		called = true
		return NewBridge(), nil
	})

	ch, err := opener.Open(context.Background(), nil, func(types.TerminalStatus) {})
	require.NoError(t, err)
	assert.NotNil(t, ch)
	assert.True(t, called)
}

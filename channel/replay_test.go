package channel

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/turnstream/ipc"
	"github.com/pithecene-io/turnstream/types"
)

func TestRecordingThenReplay(t *testing.T) {
	script := NewScriptOpener(
		Status(http.StatusOK, ""),
		Fragment(`[{"textChunk":{"text":"Hello"}}`),
		Fragment(""),
		Fragment(`,{"textChunk":{"text":" world"}}]`),
	)

	var transcript bytes.Buffer
	recorder := NewRecordingOpener(script, &transcript)

	live := &statusRecorder{}
	ch, err := recorder.Open(context.Background(), &types.ConversationRequest{Prompt: "hi"}, live.record)
	require.NoError(t, err)
	liveFragments := readAll(t, ch)
	require.NoError(t, ch.Close())
	require.NoError(t, recorder.Err())

	replayed := &statusRecorder{}
	replay := NewReplayOpener(bytes.NewReader(transcript.Bytes()))
	rch, err := replay.Open(context.Background(), nil, replayed.record)
	require.NoError(t, err)
	defer rch.Close()

	assert.Equal(t, live.all(), replayed.all(), "status delivered during Open")
	assert.Equal(t, liveFragments, readAll(t, rch))

	_, err = replay.Open(context.Background(), nil, replayed.record)
	assert.Error(t, err, "transcript can only be replayed once")
}

func TestRecordingOpener_RecordsEndOnce(t *testing.T) {
	var transcript bytes.Buffer
	recorder := NewRecordingOpener(NewScriptOpener(Fragment("[]")), &transcript)

	ch, err := recorder.Open(context.Background(), &types.ConversationRequest{}, func(types.TerminalStatus) {})
	require.NoError(t, err)
	readAll(t, ch)
	_, _ = ch.Read(context.Background())
	_ = ch.Close()

	dec := ipc.NewTranscriptDecoder(&transcript)
	var kinds []ipc.RecordType
	for {
		rec, err := dec.ReadRecord()
		if err != nil {
			break
		}
		kinds = append(kinds, rec.Type)
	}
	assert.Equal(t, []ipc.RecordType{ipc.RecordFragment, ipc.RecordEnd}, kinds)
}

func TestRecordingOpener_PropagatesOpenError(t *testing.T) {
	openErr := errors.New("dial refused")
	var transcript bytes.Buffer
	recorder := NewRecordingOpener(NewScriptOpener().FailOpen(openErr), &transcript)

	_, err := recorder.Open(context.Background(), &types.ConversationRequest{}, func(types.TerminalStatus) {})
	assert.ErrorIs(t, err, openErr)
	assert.Zero(t, transcript.Len())
}

func TestReplayOpener_MidStreamStatus(t *testing.T) {
	var transcript bytes.Buffer
	enc := ipc.NewTranscriptEncoder(&transcript)
	require.NoError(t, enc.WriteRecord(&ipc.TranscriptRecord{Type: ipc.RecordFragment, Fragment: "[]"}))
	require.NoError(t, enc.WriteRecord(&ipc.TranscriptRecord{Type: ipc.RecordStatus, Status: &types.TerminalStatus{StatusCode: 500, Body: "boom"}}))
	require.NoError(t, enc.WriteRecord(&ipc.TranscriptRecord{Type: ipc.RecordFragment, Fragment: "[{}]"}))

	rec := &statusRecorder{}
	ch, err := NewReplayOpener(&transcript).Open(context.Background(), nil, rec.record)
	require.NoError(t, err)
	assert.Empty(t, rec.all())

	f, err := ch.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "[]", f)

	f, err = ch.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "[{}]", f)
	assert.Equal(t, []types.TerminalStatus{{StatusCode: 500, Body: "boom"}}, rec.all())

	require.NoError(t, ch.Close())
	_, err = ch.Read(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReplayOpener_CorruptTranscript(t *testing.T) {
	ch, err := NewReplayOpener(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x09, 0x01})).Open(context.Background(), nil, func(types.TerminalStatus) {})
	require.Error(t, err)
	assert.Nil(t, ch)
	assert.True(t, ipc.IsFatalFrameError(err))
}

func TestScriptOpener_StepsAndCounters(t *testing.T) {
	gate := make(chan struct{})
	opener := NewScriptOpener(
		Status(http.StatusOK, ""),
		Fragment("a"),
		Gate(gate),
		Fragment("b"),
		End(),
		Fragment("never"),
	)

	rec := &statusRecorder{}
	ch, err := opener.Open(context.Background(), &types.ConversationRequest{}, rec.record)
	require.NoError(t, err)
	assert.Equal(t, 1, opener.Opens())
	assert.Len(t, rec.all(), 1)

	f, err := ch.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", f)

	close(gate)
	assert.Equal(t, []string{"b"}, readAll(t, ch))

	sc := opener.Last()
	require.NotNil(t, sc)
	assert.Equal(t, 2, sc.Reads())
	assert.False(t, sc.Closed())
	require.NoError(t, sc.Close())
	require.NoError(t, sc.Close())
	assert.Equal(t, 2, sc.CloseCount())
}

func TestScriptOpener_GateUnblocksOnClose(t *testing.T) {
	opener := NewScriptOpener(Gate(make(chan struct{})))
	ch, err := opener.Open(context.Background(), &types.ConversationRequest{}, func(types.TerminalStatus) {})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := ch.Read(context.Background())
		errc <- err
	}()
	require.NoError(t, ch.Close())
	assert.ErrorIs(t, <-errc, ErrClosed)
}

func TestScriptOpener_Fail(t *testing.T) {
	boom := errors.New("connection reset")
	ch, err := NewScriptOpener(Fail(boom)).Open(context.Background(), &types.ConversationRequest{}, func(types.TerminalStatus) {})
	require.NoError(t, err)

	_, err = ch.Read(context.Background())
	assert.ErrorIs(t, err, boom)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/turnstream/adapter"
	"github.com/pithecene-io/turnstream/adapter/redis"
	"github.com/pithecene-io/turnstream/runtime"
	"github.com/pithecene-io/turnstream/types"
)

// turnServer streams lines as one fragment each, after replying with status.
// The returned func reports the last request received.
func turnServer(t *testing.T, status int, lines ...string) (*httptest.Server, func() types.ConversationRequest) {
	t.Helper()
	var (
		mu  sync.Mutex
		got types.ConversationRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req types.ConversationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		got = req
		mu.Unlock()

		w.WriteHeader(status)
		flusher := w.(http.Flusher)
		for _, line := range lines {
			_, _ = fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}))
	t.Cleanup(server.Close)
	return server, func() types.ConversationRequest {
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

func decodeSummary(t *testing.T, stderr string) TurnSummaryView {
	t.Helper()
	var view TurnSummaryView
	require.NoError(t, json.Unmarshal([]byte(stderr), &view), "stderr: %s", stderr)
	return view
}

func TestStream_HTTPCompleted(t *testing.T) {
	server, got := turnServer(t, http.StatusOK,
		`[{"textChunk":{"text":"Hello"}}`,
		`,{"textChunk":{"text":" world"}}`,
		`,{"metadata":{"rpcGlobalId":"42","attribution":{"action":"CITE","citations":[{"startIndex":0,"endIndex":5,"url":"https://src.example"}]}}}]`,
	)
	dir := t.TempDir()
	metricsFile := filepath.Join(dir, "turn.prom")

	stdout, stderr, code := runApp(t, "stream",
		"--prompt", "say hello",
		"--url", server.URL,
		"--model", "m1",
		"--temperature", "0.5",
		"--session-id", "sess-1",
		"--format", "json",
		"--storage-path", filepath.Join(dir, "data"),
		"--metrics-file", metricsFile,
	)

	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "Hello world\n", stdout)

	req := got()
	assert.Equal(t, "say hello", req.Prompt)
	assert.Equal(t, "m1", req.Model)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.5, *req.Temperature, 1e-9)
	assert.Equal(t, "sess-1", req.SessionID)

	view := decodeSummary(t, stderr)
	assert.Equal(t, "completed", view.Outcome)
	assert.Equal(t, "sess-1", view.SessionID)
	assert.Equal(t, int64(42), view.RPCGlobalID)
	assert.Equal(t, 2, view.Yields)
	assert.Equal(t, len("Hello world"), view.ExplanationBytes)
	assert.Equal(t, 1, view.CitationCount)
	assert.Equal(t, "http", view.Transport)
	assert.NotEmpty(t, view.TurnID)
	assert.NotContains(t, stderr, "Hello", "summary must not carry explanation text")

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "turnstream_turns_completed_total")
	assert.Contains(t, string(prom), "turnstream_responses_yielded_total")

	statsOut, statsErr, statsCode := runApp(t, "stats",
		"--storage-path", filepath.Join(dir, "data"),
		"--format", "json",
	)
	require.Equal(t, 0, statsCode, "stderr: %s", statsErr)

	var stats StatsView
	require.NoError(t, json.Unmarshal([]byte(statsOut), &stats))
	assert.Equal(t, view.TurnID, stats.Turn["turn_id"])
	assert.Equal(t, "completed", stats.Turn["outcome"])
	assert.Equal(t, "127.0.0.1", stats.Turn["source"])
	require.NotNil(t, stats.Metrics)
	assert.InDelta(t, 1, stats.Metrics["turns_completed_total"], 0)
	assert.InDelta(t, 3, stats.Metrics["fragments_read_total"], 0)
	assert.InDelta(t, 1, stats.Metrics["storage_write_success_total"], 0,
		"the metrics record counts the turn record written before it")
}

func TestStream_CodeFenceOutput(t *testing.T) {
	server, _ := turnServer(t, http.StatusOK,
		`[{"textChunk":{"text":"Try:"}}`,
		`,{"codeChunk":{"code":"x := 1"}}`,
		`,{"codeChunk":{"code":"\ny := 2"}}]`,
	)

	stdout, stderr, code := runApp(t, "stream", "--prompt", "code", "--url", server.URL, "--quiet")
	require.Equal(t, 0, code, "stderr: %s", stderr)

	fence := runtime.FenceSeparator
	assert.Equal(t, "Try:"+fence+"x := 1\ny := 2"+fence, stdout)
	assert.Empty(t, stderr, "--quiet suppresses the summary")
}

func TestStream_PermissionDenied(t *testing.T) {
	server, _ := turnServer(t, http.StatusForbidden, `{"error":"forbidden"}`)

	stdout, stderr, code := runApp(t, "stream", "--prompt", "hi", "--url", server.URL, "--format", "yaml")
	assert.Equal(t, runtime.ExitCodePermissionDenied, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "outcome: permission_denied")
	assert.Contains(t, stderr, "status_code: 403")
}

func TestStream_ServerErrorKeepsPartialText(t *testing.T) {
	server, _ := turnServer(t, http.StatusOK,
		`[{"textChunk":{"text":"partial"}}`,
		`,{"error":"overloaded"}]`,
	)

	stdout, stderr, code := runApp(t, "stream", "--prompt", "hi", "--url", server.URL, "--format", "json")
	assert.Equal(t, runtime.ExitCodeServerError, code)
	assert.Equal(t, "partial\n", stdout)
	assert.Contains(t, stderr, `"outcome": "server_error"`)
	assert.Contains(t, stderr, `"error_kind": "server_error"`)
}

func TestStream_ParseError(t *testing.T) {
	server, _ := turnServer(t, http.StatusOK, `[{"textChunk":`)

	_, stderr, code := runApp(t, "stream", "--prompt", "hi", "--url", server.URL, "--format", "json")
	assert.Equal(t, runtime.ExitCodeProtocolError, code)
	assert.Contains(t, stderr, `"outcome": "parse_error"`)
}

func TestStream_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, stderr, code := runApp(t, "stream", "--prompt", "hi", "--url", url, "--format", "json")
	assert.Equal(t, runtime.ExitCodeStatusError, code)
	assert.Contains(t, stderr, `"outcome": "transport_error"`)
}

func TestStream_RecordAndReplay(t *testing.T) {
	server, _ := turnServer(t, http.StatusOK,
		`[{"textChunk":{"text":"Recorded"}}`,
		`,{"codeChunk":{"code":"ls"}}`,
		`,{"textChunk":{"text":"end"}}]`,
	)
	transcript := filepath.Join(t.TempDir(), "turn.tsx")

	live, stderr, code := runApp(t, "stream", "--prompt", "hi", "--url", server.URL, "--record", transcript, "--quiet")
	require.Equal(t, 0, code, "stderr: %s", stderr)

	replayed, stderr, code := runApp(t, "replay", "--transcript", transcript, "--format", "json")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, live, replayed)

	view := decodeSummary(t, stderr)
	assert.Equal(t, "completed", view.Outcome)
	assert.Equal(t, transportReplay, view.Transport)
	assert.Equal(t, transcript, view.Endpoint)
}

func TestStream_RecordedFailureReplaysWithSameExitCode(t *testing.T) {
	server, _ := turnServer(t, http.StatusTooManyRequests, "slow down")
	transcript := filepath.Join(t.TempDir(), "turn.tsx")

	_, _, code := runApp(t, "stream", "--prompt", "hi", "--url", server.URL, "--record", transcript, "--quiet")
	require.Equal(t, runtime.ExitCodeStatusError, code)

	_, stderr, code := runApp(t, "replay", "--transcript", transcript, "--format", "json")
	assert.Equal(t, runtime.ExitCodeStatusError, code)
	assert.Contains(t, stderr, `"status_code": 429`)
}

func TestReplay_MissingTranscript(t *testing.T) {
	_, _, code := runApp(t, "replay", "--transcript", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, exitUsage, code)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turnstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestStream_ConfigAndWebhook(t *testing.T) {
	events := make(chan adapter.TurnCompletedEvent, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event adapter.TurnCompletedEvent
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &event); err == nil {
			events <- event
		}
		assert.Equal(t, "secret", r.Header.Get("X-Token"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	server, got := turnServer(t, http.StatusOK, `[{"textChunk":{"text":"configured"}}]`)

	t.Setenv("TURNSTREAM_TEST_TOKEN", "secret")
	path := writeConfig(t, fmt.Sprintf(`
endpoint:
  url: %s
  transport: http
request:
  model: from-config
  session_id: cfg-session
adapter:
  type: webhook
  url: %s
  headers:
    X-Token: ${TURNSTREAM_TEST_TOKEN}
`, server.URL, hook.URL))

	stdout, stderr, code := runApp(t, "stream", "--config", path, "--prompt", "hi", "--quiet")
	require.Equal(t, 0, code, "stderr: %s", stderr)
	assert.Equal(t, "configured\n", stdout)
	assert.Equal(t, "from-config", got().Model)
	assert.Equal(t, "cfg-session", got().SessionID)

	select {
	case event := <-events:
		assert.Equal(t, adapter.EventTypeTurnCompleted, event.EventType)
		assert.Equal(t, "completed", event.Outcome)
		assert.Equal(t, "cfg-session", event.SessionID)
		assert.Equal(t, server.URL, event.Endpoint)
		assert.Equal(t, len("configured"), event.ExplanationBytes)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not called")
	}
}

func TestStream_RedisNotification(t *testing.T) {
	mr := miniredis.RunT(t)
	sub := mr.NewSubscriber()
	sub.Subscribe(redis.DefaultChannel)
	messages := make(chan miniredis.PubsubMessage, 1)
	go func() { messages <- <-sub.Messages() }()

	server, _ := turnServer(t, http.StatusOK, `[{"textChunk":{"text":"x"}},{"error":"boom"}]`)
	path := writeConfig(t, fmt.Sprintf("adapter:\n  type: redis\n  url: redis://%s\n", mr.Addr()))

	_, _, code := runApp(t, "stream", "--config", path, "--prompt", "hi", "--url", server.URL, "--quiet")
	assert.Equal(t, runtime.ExitCodeServerError, code)

	select {
	case msg := <-messages:
		var event adapter.TurnCompletedEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Message), &event))
		assert.Equal(t, "server_error", event.Outcome)
		assert.Equal(t, "server_error", event.ErrorKind)
		assert.NotContains(t, msg.Message, "boom", "events carry no content")
	case <-time.After(5 * time.Second):
		t.Fatal("no redis message published")
	}
}

func TestStream_UsageErrors(t *testing.T) {
	badConfig := writeConfig(t, "endpoint:\n  transport: carrier-pigeon\n")

	tests := []struct {
		name string
		args []string
	}{
		{"no endpoint", []string{"--prompt", "hi"}},
		{"bad transport flag", []string{"--prompt", "hi", "--url", "http://x", "--transport", "smtp"}},
		{"temperature out of range", []string{"--prompt", "hi", "--url", "http://x", "--temperature", "3"}},
		{"empty prompt", []string{"--prompt", "", "--url", "http://x"}},
		{"bad log level", []string{"--prompt", "hi", "--url", "http://x", "--log-level", "loud"}},
		{"bad storage backend", []string{"--prompt", "hi", "--url", "http://x", "--storage-backend", "tape"}},
		{"invalid config", []string{"--prompt", "hi", "--config", badConfig}},
		{"missing config", []string{"--prompt", "hi", "--config", filepath.Join(t.TempDir(), "nope.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := runApp(t, append([]string{"stream"}, tt.args...)...)
			assert.Equal(t, exitUsage, code, "stderr: %s", stderr)
		})
	}
}

func TestStream_StorageFailureDoesNotChangeExitCode(t *testing.T) {
	server, _ := turnServer(t, http.StatusOK, `[{"textChunk":{"text":"ok"}}]`)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	_, stderr, code := runApp(t, "stream", "--prompt", "hi", "--url", server.URL,
		"--storage-path", filepath.Join(blocker, "data"), "--format", "json")
	assert.Equal(t, 0, code)
	assert.True(t, strings.Contains(stderr, "write failed") || strings.Contains(stderr, "storage setup failed"),
		"storage failure should be logged: %s", stderr)
}

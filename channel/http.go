package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/pithecene-io/turnstream/types"
)

const (
	// MaxErrorBodySize bounds the body captured for a failing status.
	MaxErrorBodySize = 64 * 1024
	// MaxFragmentSize bounds one line of a streamed response body.
	MaxFragmentSize = 16 * 1024 * 1024
)

// HTTPOpener posts the request as JSON and streams the response body one
// fragment per line.
type HTTPOpener struct {
	// URL is the conversation endpoint.
	URL string
	// Headers are added to every request.
	Headers map[string]string
	// Client is used for the request. Defaults to http.DefaultClient.
	Client *http.Client
}

var _ Opener = (*HTTPOpener)(nil)

// Open sends the request and reports the response status through onStatus.
// A failing status captures up to MaxErrorBodySize of the body and yields a
// channel that is already at end-of-stream. Connection failures are returned
// as errors.
func (o *HTTPOpener) Open(ctx context.Context, req *types.ConversationRequest, onStatus StatusFunc) (Channel, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, o.URL, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range o.Headers {
		httpReq.Header.Set(k, v)
	}

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("request failed: %w", err)
	}

	ch := &httpChannel{
		bridge: NewBridge(),
		body:   resp.Body,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if resp.StatusCode != http.StatusOK {
		captured, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		onStatus(types.TerminalStatus{StatusCode: resp.StatusCode, Body: string(captured)})
		ch.bridge.End()
		close(ch.done)
		return ch, nil
	}

	onStatus(types.TerminalStatus{StatusCode: resp.StatusCode})
	go ch.pump(reqCtx, onStatus)
	return ch, nil
}

type httpChannel struct {
	bridge    *Bridge
	body      io.ReadCloser
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (c *httpChannel) pump(ctx context.Context, onStatus StatusFunc) {
	defer close(c.done)
	defer c.bridge.End()

	scanner := bufio.NewScanner(c.body)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxFragmentSize)
	for scanner.Scan() {
		if err := c.bridge.Push(ctx, scanner.Text()); err != nil {
			return
		}
	}

	err := scanner.Err()
	if err == nil || ctx.Err() != nil {
		return
	}
	select {
	case <-c.bridge.Done():
		return
	default:
	}
	if errors.Is(err, bufio.ErrTooLong) {
		err = fmt.Errorf("fragment exceeds %d bytes: %w", MaxFragmentSize, err)
	}
	onStatus(types.TerminalStatus{StatusCode: http.StatusOK, Error: err.Error()})
}

func (c *httpChannel) Read(ctx context.Context) (string, error) {
	return c.bridge.Read(ctx)
}

func (c *httpChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.bridge.Close()
		c.cancel()
		err = c.body.Close()
		<-c.done
	})
	return err
}

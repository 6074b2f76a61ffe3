package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pithecene-io/turnstream/types"
)

// WebSocketOpener dials a WebSocket endpoint, sends the request as one JSON
// text message, and treats every text message received as one fragment.
// A normal closure from the server is end-of-stream.
type WebSocketOpener struct {
	// URL is the ws:// or wss:// conversation endpoint.
	URL string
	// Headers are sent with the handshake.
	Headers map[string]string
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

var _ Opener = (*WebSocketOpener)(nil)

// Open performs the handshake. A handshake rejected with an HTTP response is
// reported as that status and yields an ended channel; a handshake that never
// produced a response is returned as an error.
func (o *WebSocketOpener) Open(ctx context.Context, req *types.ConversationRequest, onStatus StatusFunc) (Channel, error) {
	dialer := o.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	header := http.Header{}
	for k, v := range o.Headers {
		header.Set(k, v)
	}

	conn, resp, err := dialer.DialContext(ctx, o.URL, header)
	if err != nil {
		if resp == nil {
			return nil, fmt.Errorf("websocket dial failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		captured, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		onStatus(types.TerminalStatus{StatusCode: resp.StatusCode, Body: string(captured)})
		bridge := NewBridge()
		bridge.End()
		return bridge, nil
	}

	if err := conn.WriteJSON(req); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	onStatus(types.TerminalStatus{StatusCode: http.StatusOK})

	ch := &wsChannel{
		bridge: NewBridge(),
		conn:   conn,
		done:   make(chan struct{}),
	}
	go ch.pump(onStatus)
	return ch, nil
}

type wsChannel struct {
	bridge    *Bridge
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsChannel) pump(onStatus StatusFunc) {
	defer close(c.done)
	defer c.bridge.End()

	ctx := context.Background()
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.bridge.Done():
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			onStatus(types.TerminalStatus{StatusCode: http.StatusOK, Error: err.Error()})
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if err := c.bridge.Push(ctx, string(data)); err != nil {
			return
		}
	}
}

func (c *wsChannel) Read(ctx context.Context) (string, error) {
	return c.bridge.Read(ctx)
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.bridge.Close()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		// Best effort; the server may already have closed.
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		err = c.conn.Close()
		<-c.done
	})
	return err
}

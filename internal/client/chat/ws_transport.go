package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/moodtutor/internal/model/chat"
)

// WSTransport asks over /ws/ask: one JSON request frame out, one text frame
// per fragment back, closed with 1000 when the answer is complete.
type WSTransport struct {
	endpoint string
	dialer   *websocket.Dialer
}

// NewWSTransport derives the websocket endpoint from the backend's http(s) URL.
func NewWSTransport(baseURL string, dialer *websocket.Dialer) (*WSTransport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
	u.Path += "/ws/ask"

	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WSTransport{endpoint: u.String(), dialer: dialer}, nil
}

// Ask implements Transport.
func (t *WSTransport) Ask(ctx context.Context, req chat.AskRequest) (Fragments, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.endpoint, http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", t.endpoint, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", t.endpoint, err)
	}

	if err := conn.WriteJSON(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send request frame: %w", err)
	}

	f := &frameFragments{conn: conn, stop: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-f.stop:
		}
	}()
	return f, nil
}

type frameFragments struct {
	conn   *websocket.Conn
	stop   chan struct{}
	closed bool
}

func (f *frameFragments) Next() (string, error) {
	for {
		kind, data, err := f.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return "", io.EOF
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return "", fmt.Errorf("answer stream closed with %d: %s", closeErr.Code, closeErr.Text)
			}
			return "", fmt.Errorf("read frame: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		return string(data), nil
	}
}

func (f *frameFragments) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	close(f.stop)
	return f.conn.Close()
}

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/zhouzirui/moodtutor/internal/model/chat"
)

const readBufferSize = 4096

// HTTPTransport 向 /ask 发送请求并读取分块的文本响应。
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport for the backend at baseURL.
// A nil client uses http.DefaultClient. No timeout is applied to the
// exchange; cancel ctx to abandon it.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Ask implements Transport.
func (t *HTTPTransport) Ask(ctx context.Context, req chat.AskRequest) (Fragments, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/ask", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post /ask: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("post /ask: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return &bodyFragments{body: resp.Body, buf: make([]byte, readBufferSize)}, nil
}

// bodyFragments decodes a byte stream into text fragments. A multi-byte
// character split across reads is held back until its remaining bytes
// arrive, so every fragment is valid UTF-8.
type bodyFragments struct {
	body    io.ReadCloser
	buf     []byte
	pending []byte
	done    bool
}

func (f *bodyFragments) Next() (string, error) {
	for {
		if f.done {
			return "", io.EOF
		}

		n, err := f.body.Read(f.buf)
		if n > 0 {
			data := append(f.pending, f.buf[:n]...)
			cut := completePrefix(data)
			f.pending = append([]byte(nil), data[cut:]...)
			if cut > 0 {
				text := strings.ToValidUTF8(string(data[:cut]), string(utf8.RuneError))
				if err == io.EOF {
					f.done = true
					text += f.flush()
				}
				return text, nil
			}
		}

		if err == io.EOF {
			f.done = true
			if tail := f.flush(); tail != "" {
				return tail, nil
			}
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("read answer: %w", err)
		}
	}
}

// flush decodes whatever is left at end of stream.
func (f *bodyFragments) flush() string {
	if len(f.pending) == 0 {
		return ""
	}
	tail := strings.ToValidUTF8(string(f.pending), string(utf8.RuneError))
	f.pending = nil
	return tail
}

func (f *bodyFragments) Close() error {
	return f.body.Close()
}

// completePrefix returns the length of the longest prefix of b that does
// not end inside a multi-byte character.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

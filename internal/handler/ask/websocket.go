package ask

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/moodtutor/internal/model/chat"
)

const wsWriteWait = 10 * time.Second

// handleWebSocket 处理 WebSocket 提问：客户端发送一个 JSON 请求帧，服务端每个片段回一个文本帧，
// 正常结束时以 1000 关闭，失败时以 1011 关闭。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ask-ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var req chat.AskRequest
	if err := conn.ReadJSON(&req); err != nil {
		closeWith(conn, websocket.CloseUnsupportedData, "invalid request frame")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		closeWith(conn, websocket.ClosePolicyViolation, "No question provided")
		return
	}
	if h.answerer == nil {
		closeWith(conn, websocket.CloseTryAgainLater, "tutor unavailable")
		return
	}

	ctx := r.Context()
	frames := 0
	err = h.answerer.StreamAnswer(ctx, req, func(fragment string) error {
		if frames > 0 && h.delay > 0 {
			timer := time.NewTimer(h.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
			return err
		}
		frames++
		return conn.WriteMessage(websocket.TextMessage, []byte(fragment))
	})
	if err != nil {
		log.Printf("[ask-ws] stream failed after %d frames: %v", frames, err)
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return
		}
		closeWith(conn, websocket.CloseInternalServerErr, "answer generation failed")
		return
	}

	closeWith(conn, websocket.CloseNormalClosure, "")
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)); err != nil {
		log.Printf("[ask-ws] failed to send close frame: %v", err)
	}
}

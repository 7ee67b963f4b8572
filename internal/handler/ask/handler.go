package ask

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/moodtutor/internal/model/chat"
	"github.com/zhouzirui/moodtutor/pkg/utils"
)

// Answerer streams a tutor answer fragment by fragment.
type Answerer interface {
	StreamAnswer(ctx context.Context, req chat.AskRequest, emit func(string) error) error
}

// Handler serves POST /ask and its websocket twin.
type Handler struct {
	answerer Answerer
	delay    time.Duration
	upgrader websocket.Upgrader
}

// New creates the ask handler. delay paces fragments on the wire.
func New(answerer Answerer, delay time.Duration) *Handler {
	return &Handler{
		answerer: answerer,
		delay:    delay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册提问相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ask", h.handleAsk)
	r.Get("/ws/ask", h.handleWebSocket)
}

// handleAsk streams the answer as a chunked text/plain body. The end of the
// answer is the end of the body; a failure after the first fragment aborts
// the connection so the client never mistakes a partial answer for a whole one.
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req chat.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondText(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		utils.RespondText(w, http.StatusBadRequest, "No question provided")
		return
	}
	if h.answerer == nil {
		utils.RespondText(w, http.StatusServiceUnavailable, "tutor unavailable")
		return
	}

	writer, err := utils.NewChunkWriter(w, h.delay)
	if err != nil {
		utils.RespondText(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	err = h.answerer.StreamAnswer(ctx, req, func(fragment string) error {
		return writer.Write(ctx, fragment)
	})
	if err == nil {
		log.Printf("[ask] completed request=%s level=%s emotion=%s", reqID, req.Level, req.Emotion)
		return
	}

	log.Printf("[ask] request=%s failed: %v", reqID, err)
	if !writer.Started() {
		utils.RespondText(w, http.StatusInternalServerError, "answer generation failed")
		return
	}
	panic(http.ErrAbortHandler)
}

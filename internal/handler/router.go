package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/moodtutor/internal/handler/ask"
	"github.com/zhouzirui/moodtutor/internal/handler/upload"
	middlewarePkg "github.com/zhouzirui/moodtutor/internal/middleware"
	"github.com/zhouzirui/moodtutor/pkg/utils"
)

// Options tunes transport-level behaviour of the routes.
type Options struct {
	StreamDelay    time.Duration
	MaxUploadBytes int64
}

// NewRouter wires HTTP routes to core services. answerer may be nil when no
// language model is configured; /ask then answers 503 while /upload keeps working.
func NewRouter(answerer ask.Answerer, ingester upload.Ingester, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	ask.New(answerer, opts.StreamDelay).RegisterRoutes(r)
	upload.New(ingester, opts.MaxUploadBytes).RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/moodtutor/internal/config"
	"github.com/zhouzirui/moodtutor/internal/handler"
	"github.com/zhouzirui/moodtutor/internal/handler/ask"
	"github.com/zhouzirui/moodtutor/internal/model/document"
	"github.com/zhouzirui/moodtutor/internal/service/ai"
	"github.com/zhouzirui/moodtutor/internal/service/knowledge"
	"github.com/zhouzirui/moodtutor/internal/storage/keyvalue"
	"github.com/zhouzirui/moodtutor/internal/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, closeStore := newDocumentStore(ctx, cfg.Redis)
	defer closeStore()

	tokens := knowledge.NewTokenCounter(cfg.Knowledge.TokenEncoding)
	knowledgeSvc := knowledge.NewService(store, tokens, cfg.Knowledge)

	// A nil answerer keeps /upload available and makes /ask return 503.
	var answerer ask.Answerer
	aiService, err := ai.NewService(ctx, cfg.AI, knowledgeSvc)
	if err != nil {
		log.Printf("warning: failed to initialize AI service: %v", err)
		log.Println("continuing without /ask - set ARK_API_KEY + ARK_MODEL or OPENAI_API_KEY")
	} else {
		answerer = aiService
		log.Printf("AI service initialized with provider=%s", aiService.ProviderName())
	}

	router := handler.NewRouter(answerer, knowledgeSvc, handler.Options{
		StreamDelay:    cfg.Server.StreamDelay,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	startServer(ctx, cfg.Server, router)
}

func newDocumentStore(ctx context.Context, redisCfg config.RedisConfig) (document.Store, func()) {
	if !redisCfg.Enabled() {
		log.Println("REDIS_ADDR not set, keeping uploaded documents in memory")
		return memory.NewDocumentStore(), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("warning: redis %s unreachable, falling back to memory: %v", redisCfg.Addr, err)
		_ = rdb.Close()
		return memory.NewDocumentStore(), func() {}
	}

	log.Printf("document store backed by redis %s", redisCfg.Addr)
	return keyvalue.NewDocumentStore(rdb), func() { _ = rdb.Close() }
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("moodtutor backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/moodtutor/internal/config"
	"github.com/zhouzirui/moodtutor/internal/service/knowledge"
	"github.com/zhouzirui/moodtutor/internal/storage/memory"
)

func newTestRouter() http.Handler {
	knowledgeSvc := knowledge.NewService(memory.NewDocumentStore(), &knowledge.TokenCounter{}, config.KnowledgeConfig{
		ChunkSize: 100, ChunkOverlap: 10, TopK: 3, ContextTokens: 500,
	})
	return NewRouter(nil, knowledgeSvc, Options{MaxUploadBytes: 1 << 20})
}

func TestHealthz(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"ok"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestAskWithoutModelIsUnavailable(t *testing.T) {
	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ask", strings.NewReader(`{"question":"hi"}`))
	newTestRouter().ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("CORS middleware not applied")
	}
}

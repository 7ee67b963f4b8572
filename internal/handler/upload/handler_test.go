package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodtutor/internal/model/chat"
	"github.com/zhouzirui/moodtutor/internal/model/document"
)

type fakeIngester struct {
	filename string
	data     []byte
	err      error
}

func (f *fakeIngester) Ingest(_ context.Context, filename string, data []byte) (document.Document, error) {
	f.filename = filename
	f.data = data
	if f.err != nil {
		return document.Document{}, f.err
	}
	return document.Document{ID: "doc-1", Filename: filename, ChunkCount: 1}, nil
}

func setupRouter(ingester Ingester) *chi.Mux {
	r := chi.NewRouter()
	New(ingester, 1<<20).RegisterRoutes(r)
	return r
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write err: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close err: %v", err)
	}
	return body, writer.FormDataContentType()
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) chat.UploadResponse {
	t.Helper()
	var out chat.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	return out
}

func TestUploadSuccess(t *testing.T) {
	ingester := &fakeIngester{}
	r := setupRouter(ingester)

	body, contentType := multipartBody(t, "file", "notes.txt", []byte("cells"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := decode(t, resp); got.Message != "notes.txt processed successfully!" {
		t.Fatalf("unexpected message %+v", got)
	}
	if string(ingester.data) != "cells" {
		t.Fatalf("ingester got %q", ingester.data)
	}
}

func TestUploadMissingFileField(t *testing.T) {
	r := setupRouter(&fakeIngester{})

	body, contentType := multipartBody(t, "document", "notes.txt", []byte("cells"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if got := decode(t, resp); got.Error != "No file part" {
		t.Fatalf("unexpected error %+v", got)
	}
}

func TestUploadEmptyFilename(t *testing.T) {
	ingester := &fakeIngester{}
	r := setupRouter(ingester)

	body, contentType := multipartBody(t, "file", "", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if got := decode(t, resp); got.Error != "No selected file" {
		t.Fatalf("unexpected error %+v", got)
	}
	if ingester.data != nil {
		t.Fatal("ingester should not be called")
	}
}

func TestUploadUnsupportedType(t *testing.T) {
	r := setupRouter(&fakeIngester{})

	body, contentType := multipartBody(t, "file", "photo.png", []byte{0x89})
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if got := decode(t, resp); got.Error != "Unsupported file type" {
		t.Fatalf("unexpected error %+v", got)
	}
}

func TestUploadIngestFailure(t *testing.T) {
	r := setupRouter(&fakeIngester{err: errors.New("corrupt pdf")})

	body, contentType := multipartBody(t, "file", "paper.pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if got := decode(t, resp); got.Error != "An error occurred: corrupt pdf" {
		t.Fatalf("unexpected error %+v", got)
	}
}

func TestUploadNotMultipart(t *testing.T) {
	r := setupRouter(&fakeIngester{})

	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

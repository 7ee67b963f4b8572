package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodtutor/internal/model/document"
	"github.com/zhouzirui/moodtutor/internal/service/knowledge"
	"github.com/zhouzirui/moodtutor/pkg/utils"
)

// Ingester turns an uploaded file into retrievable context.
type Ingester interface {
	Ingest(ctx context.Context, filename string, data []byte) (document.Document, error)
}

// Handler 文档上传的HTTP处理器
type Handler struct {
	ingester Ingester
	maxBytes int64
}

// New 创建上传处理器
func New(ingester Ingester, maxBytes int64) *Handler {
	return &Handler{
		ingester: ingester,
		maxBytes: maxBytes,
	}
}

// RegisterRoutes 注册上传相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/upload", h.handleUpload)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.RespondError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "No file part")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		// filename="" 的文件部分会被当作普通表单字段解析
		if errors.Is(err, http.ErrMissingFile) && hasValuePart(r.MultipartForm, "file") {
			utils.RespondError(w, http.StatusBadRequest, "No selected file")
			return
		}
		utils.RespondError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if header.Filename == "" || filename == "." || filename == string(filepath.Separator) {
		utils.RespondError(w, http.StatusBadRequest, "No selected file")
		return
	}
	if !knowledge.Supported(filename) {
		utils.RespondError(w, http.StatusBadRequest, "Unsupported file type")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("An error occurred: %v", err))
		return
	}

	doc, err := h.ingester.Ingest(r.Context(), filename, data)
	if err != nil {
		log.Printf("[upload] failed to ingest %s: %v", filename, err)
		utils.RespondError(w, http.StatusInternalServerError, fmt.Sprintf("An error occurred: %v", err))
		return
	}

	log.Printf("[upload] %s stored as document=%s chunks=%d", filename, doc.ID, doc.ChunkCount)
	utils.RespondMessage(w, http.StatusOK, fmt.Sprintf("%s processed successfully!", filename))
}

// hasValuePart 判断表单中是否存在没有文件名的同名部分。
func hasValuePart(form *multipart.Form, field string) bool {
	if form == nil {
		return false
	}
	_, ok := form.Value[field]
	return ok
}

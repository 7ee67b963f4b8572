// Package upload sends a document to the backend's ingestion endpoint and
// reports progress through the upload status line.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/zhouzirui/moodtutor/internal/client/state"
	"github.com/zhouzirui/moodtutor/internal/model/chat"
)

const (
	ProcessingStatus = "Uploading and processing..."
	FailureStatus    = "Error uploading file."
)

var ErrUploadInFlight = errors.New("an upload is already in progress")

// Uploader 持有上传状态
type Uploader struct {
	baseURL string
	client  *http.Client
	slot    *state.UploadSlot
}

// New 创建指向 baseURL 后端的上传器。
func New(baseURL string, client *http.Client, slot *state.UploadSlot) *Uploader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{baseURL: strings.TrimRight(baseURL, "/"), client: client, slot: slot}
}

// UploadFile 以文件名上传 path。打开文件失败同样算作一次失败的上传，状态行会被更新。
func (u *Uploader) UploadFile(ctx context.Context, path string) error {
	filename := filepath.Base(path)
	return u.run(filename, func() (string, error) {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		return u.send(ctx, filename, f)
	})
}

// Upload streams body as the multipart "file" field. The status line ends
// as the server's message, its error, or FailureStatus when the exchange
// itself failed.
func (u *Uploader) Upload(ctx context.Context, filename string, body io.Reader) error {
	return u.run(filename, func() (string, error) {
		return u.send(ctx, filename, body)
	})
}

func (u *Uploader) run(filename string, attempt func() (string, error)) error {
	if !u.slot.Begin(ProcessingStatus) {
		return ErrUploadInFlight
	}

	status, err := attempt()
	if err != nil {
		log.Printf("[upload] %s failed: %v", filename, err)
		u.slot.Finish(FailureStatus)
		return err
	}
	u.slot.Finish(status)
	return nil
}

func (u *Uploader) send(ctx context.Context, filename string, body io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err == nil {
			_, err = io.Copy(part, body)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/upload", pr)
	if err != nil {
		pr.CloseWithError(err)
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return "", fmt.Errorf("post /upload: %w", err)
	}
	defer resp.Body.Close()

	var payload chat.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode upload response (status %d): %w", resp.StatusCode, err)
	}

	switch {
	case payload.Message != "":
		return payload.Message, nil
	case payload.Error != "":
		log.Printf("[upload] %s rejected with status %d: %s", filename, resp.StatusCode, payload.Error)
		return payload.Error, nil
	default:
		return "", fmt.Errorf("upload response (status %d) carried neither message nor error", resp.StatusCode)
	}
}

package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/zhouzirui/moodtutor/internal/analysis/emotion"
	"github.com/zhouzirui/moodtutor/internal/model/video"
)

// RemoteNet drives a local inference runtime over HTTP.
//
//	PUT  /models/{name}  multipart: manifest + one part per shard
//	POST /detect         image/jpeg body -> [{"score":..,"expressions":{..}}]
type RemoteNet struct {
	baseURL string
	client  *http.Client
}

// NewRemoteNet creates a client for the runtime at baseURL.
func NewRemoteNet(baseURL string, client *http.Client) *RemoteNet {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteNet{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Load uploads one artifact.
func (n *RemoteNet) Load(ctx context.Context, art Artifact) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("manifest", art.Name+manifestSuffix)
	if err != nil {
		return err
	}
	if _, err := part.Write(art.Manifest); err != nil {
		return err
	}

	shards := make([]string, 0, len(art.Shards))
	for name := range art.Shards {
		shards = append(shards, name)
	}
	sort.Strings(shards)
	for _, name := range shards {
		part, err := mw.CreateFormFile("shard", name)
		if err != nil {
			return err
		}
		if _, err := part.Write(art.Shards[name]); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	endpoint := n.baseURL + "/models/" + url.PathEscape(art.Name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

type detection struct {
	Score       float64            `json:"score"`
	Expressions map[string]float64 `json:"expressions"`
}

// Detect posts the frame and decodes the detections.
func (n *RemoteNet) Detect(ctx context.Context, frame video.Frame) ([]Face, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/detect", bytes.NewReader(frame.Data))
	if err != nil {
		return nil, err
	}
	contentType := "image/jpeg"
	if frame.Format != "" && frame.Format != "jpeg" {
		contentType = "image/" + frame.Format
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var detections []detection
	if err := json.NewDecoder(resp.Body).Decode(&detections); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}

	faces := make([]Face, 0, len(detections))
	for _, d := range detections {
		face := Face{Score: d.Score, Expressions: make(map[emotion.Label]float64, len(d.Expressions))}
		for raw, score := range d.Expressions {
			if label, ok := emotion.Parse(raw); ok {
				face.Expressions[label] = score
			}
		}
		faces = append(faces, face)
	}
	return faces, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s: status %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
}

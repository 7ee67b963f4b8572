package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ModelNames 是检测前必须全部加载的五个网络。
var ModelNames = []string{
	"tiny_face_detector",
	"face_landmark_68",
	"face_recognition",
	"face_expression",
	"ssd_mobilenetv1",
}

const manifestSuffix = "_model-weights_manifest.json"

// Artifact is one network's weights: its manifest plus every shard the
// manifest lists, keyed by the shard's relative path.
type Artifact struct {
	Name     string
	Manifest []byte
	Shards   map[string][]byte
}

// weightsGroup is one entry of a weights manifest.
type weightsGroup struct {
	Paths []string `json:"paths"`
}

// AssetSource reads files relative to the model base location.
type AssetSource interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// NewAssetSource returns a source rooted at base, which is either a local
// directory or an http(s) URL.
func NewAssetSource(base string, client *http.Client) (AssetSource, error) {
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse model url: %w", err)
		}
		if client == nil {
			client = http.DefaultClient
		}
		return &httpSource{base: u, client: client}, nil
	}

	info, err := os.Stat(base)
	if err != nil {
		return nil, fmt.Errorf("model directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("model directory: %s is not a directory", base)
	}
	return dirSource(base), nil
}

type dirSource string

func (d dirSource) Open(_ context.Context, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(string(d), filepath.FromSlash(path.Clean("/"+name))))
}

type httpSource struct {
	base   *url.URL
	client *http.Client
}

func (h *httpSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	u := *h.base
	u.Path = path.Join(u.Path, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", u.String(), resp.StatusCode)
	}
	return resp.Body, nil
}

// FetchArtifact 读取 name 的 manifest 及其列出的全部权重分片。
func FetchArtifact(ctx context.Context, src AssetSource, name string) (Artifact, error) {
	manifest, err := readAll(ctx, src, name+manifestSuffix)
	if err != nil {
		return Artifact{}, fmt.Errorf("%s manifest: %w", name, err)
	}

	var groups []weightsGroup
	if err := json.Unmarshal(manifest, &groups); err != nil {
		return Artifact{}, fmt.Errorf("%s manifest: %w", name, err)
	}

	art := Artifact{Name: name, Manifest: manifest, Shards: make(map[string][]byte)}
	for _, group := range groups {
		for _, shard := range group.Paths {
			if _, seen := art.Shards[shard]; seen {
				continue
			}
			data, err := readAll(ctx, src, shard)
			if err != nil {
				return Artifact{}, fmt.Errorf("%s shard %s: %w", name, shard, err)
			}
			art.Shards[shard] = data
		}
	}
	return art, nil
}

func readAll(ctx context.Context, src AssetSource, name string) ([]byte, error) {
	rc, err := src.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

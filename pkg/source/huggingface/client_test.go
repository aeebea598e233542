package huggingface

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/model"
	"github.com/docker/model-converter/pkg/source"
)

type fakeHub struct {
	t        *testing.T
	token    string
	files    map[string]string
	lfs      map[string]string // file -> sha256 override, "" means computed
	mu       sync.Mutex
	requests []string
	status   int
}

func (h *fakeHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/models/", func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(w, r) {
			return
		}
		assert.Equal(h.t, "true", r.URL.Query().Get("blobs"))
		type lfs struct {
			SHA256 string `json:"sha256"`
			Size   int64  `json:"size"`
		}
		type sib struct {
			RFilename string `json:"rfilename"`
			LFS       *lfs   `json:"lfs,omitempty"`
		}
		var siblings []sib
		for name, content := range h.files {
			s := sib{RFilename: name}
			if sum, ok := h.lfs[name]; ok {
				if sum == "" {
					raw := sha256.Sum256([]byte(content))
					sum = hex.EncodeToString(raw[:])
				}
				s.LFS = &lfs{SHA256: sum, Size: int64(len(content))}
			}
			siblings = append(siblings, s)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sha": "abc123", "siblings": siblings})
	})
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(w, r) {
			return
		}
		// <ns>/<name>/resolve/<rev>/<path>
		parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 5)
		if len(parts) != 5 || parts[2] != "resolve" {
			http.NotFound(w, r)
			return
		}
		rev, file := parts[3], parts[4]
		h.mu.Lock()
		h.requests = append(h.requests, rev+":"+file)
		h.mu.Unlock()
		content, ok := h.files[file]
		if !ok {
			w.Header().Set("X-Error-Message", "Entry not found")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(content))
	})
	return mux
}

func (h *fakeHub) authorized(w http.ResponseWriter, r *http.Request) bool {
	if h.status != 0 {
		http.Error(w, `{"error":"Repository not found"}`, h.status)
		return false
	}
	if h.token != "" && r.Header.Get("Authorization") != "Bearer "+h.token {
		http.Error(w, `{"error":"Invalid credentials"}`, http.StatusUnauthorized)
		return false
	}
	return true
}

func newTestClient(t *testing.T, hub *fakeHub) *Client {
	hub.t = t
	server := httptest.NewServer(hub.handler())
	t.Cleanup(server.Close)
	return NewClient(server.URL, hub.token, logging.Discard())
}

func TestDownload(t *testing.T) {
	hub := &fakeHub{
		token: "hf_secret",
		files: map[string]string{
			"config.json":       `{"model_type":"llama"}`,
			"model.safetensors": "weights",
			"README.md":         "---\nlicense: mit\n---\n",
			"onnx/model.onnx":   "ignored",
			"tokenizer/vocab":   "nested file",
		},
		lfs: map[string]string{"model.safetensors": ""},
	}
	c := newTestClient(t, hub)
	c.Ignore = []string{"onnx/*"}

	dest := filepath.Join(t.TempDir(), "bundle")
	dir, err := c.Download(t.Context(), model.MustParse("org/tiny-model"), dest)
	require.NoError(t, err)
	require.Equal(t, dest, dir)

	data, err := os.ReadFile(filepath.Join(dir, "model.safetensors"))
	require.NoError(t, err)
	require.Equal(t, "weights", string(data))
	data, err = os.ReadFile(filepath.Join(dir, "tokenizer", "vocab"))
	require.NoError(t, err)
	require.Equal(t, "nested file", string(data))
	_, err = os.Stat(filepath.Join(dir, "onnx", "model.onnx"))
	require.True(t, os.IsNotExist(err))

	// Every file is pinned to the listed commit.
	require.Len(t, hub.requests, 4)
	for _, r := range hub.requests {
		require.Regexp(t, `^abc123:`, r)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".download-")
	}
}

func TestDownloadChecksumMismatch(t *testing.T) {
	hub := &fakeHub{
		files: map[string]string{"config.json": "{}", "model.safetensors": "tampered"},
		lfs:   map[string]string{"model.safetensors": hex.EncodeToString(make([]byte, 32))},
	}
	c := newTestClient(t, hub)

	dest := t.TempDir()
	_, err := c.Download(t.Context(), model.MustParse("org/tiny-model"), dest)
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum mismatch")
	_, statErr := os.Stat(filepath.Join(dest, "model.safetensors"))
	require.True(t, os.IsNotExist(statErr))
}

func TestDownloadNotFound(t *testing.T) {
	c := newTestClient(t, &fakeHub{status: http.StatusNotFound})
	_, err := c.Download(t.Context(), model.MustParse("org/missing"), t.TempDir())
	require.True(t, errors.Is(err, source.ErrNotFound))

	var srcErr *source.Error
	require.True(t, errors.As(err, &srcErr))
	require.Equal(t, "list", srcErr.Op)
	require.Equal(t, "org/missing", srcErr.ID)
}

func TestDownloadUnauthorized(t *testing.T) {
	hub := &fakeHub{token: "hf_secret", files: map[string]string{"config.json": "{}"}}
	c := newTestClient(t, hub)
	c.Token = "wrong"
	_, err := c.Download(t.Context(), model.MustParse("org/gated"), t.TempDir())
	require.True(t, errors.Is(err, source.ErrUnauthorized))
}

func TestDownloadRejectsUnsafeNames(t *testing.T) {
	hub := &fakeHub{files: map[string]string{"../escape.bin": "x", "config.json": "{}"}}
	c := newTestClient(t, hub)
	_, err := c.Download(t.Context(), model.MustParse("org/evil"), t.TempDir())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsafe file name")
}

func TestDownloadEmptyRepository(t *testing.T) {
	c := newTestClient(t, &fakeHub{files: map[string]string{}})
	_, err := c.Download(t.Context(), model.MustParse("org/empty"), t.TempDir())
	require.Error(t, err)
}

func TestFetchTextFile(t *testing.T) {
	hub := &fakeHub{files: map[string]string{"README.md": "---\nlicense: mit\n---\n"}}
	c := newTestClient(t, hub)

	doc, err := c.FetchTextFile(t.Context(), model.MustParse("org/tiny-model"), "README.md")
	require.NoError(t, err)
	require.Equal(t, "---\nlicense: mit\n---\n", doc)
	require.Equal(t, []string{"main:README.md"}, hub.requests)

	_, err = c.FetchTextFile(t.Context(), model.MustParse("org/tiny-model"), "MISSING.md")
	require.True(t, errors.Is(err, source.ErrNotFound))
	require.Contains(t, err.Error(), "Entry not found")
}

func TestFetchTextFileAfterDownloadUsesDownloadedCommit(t *testing.T) {
	hub := &fakeHub{files: map[string]string{
		"config.json": `{"model_type":"llama"}`,
		"README.md":   "---\nlicense: mit\n---\n",
	}}
	c := newTestClient(t, hub)
	id := model.MustParse("org/tiny-model")

	_, err := c.Download(t.Context(), id, filepath.Join(t.TempDir(), "bundle"))
	require.NoError(t, err)
	hub.requests = nil

	_, err = c.FetchTextFile(t.Context(), id, "README.md")
	require.NoError(t, err)
	require.Equal(t, []string{"abc123:README.md"}, hub.requests)

	// Other models still read from the configured branch.
	hub.requests = nil
	_, err = c.FetchTextFile(t.Context(), model.MustParse("org/other"), "README.md")
	require.NoError(t, err)
	require.Equal(t, []string{"main:README.md"}, hub.requests)
}

func TestModelURL(t *testing.T) {
	c := NewClient("", "", logging.Discard())
	require.Equal(t, "https://huggingface.co/org/tiny-model", c.ModelURL(model.MustParse("org/tiny-model")))
}

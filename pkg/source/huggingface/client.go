// Package huggingface downloads model repositories from a Hugging Face hub
// (or any server speaking its REST API).
package huggingface

import (
	"context"
	_ "crypto/sha256" // register the digest algorithm
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docker/go-units"
	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/model"
	"github.com/docker/model-converter/pkg/source"
)

const (
	// DefaultEndpoint is the public hub.
	DefaultEndpoint = "https://huggingface.co"
	// DefaultRevision is the branch resolved when none is configured.
	DefaultRevision = "main"
	// DefaultConcurrency bounds parallel file downloads.
	DefaultConcurrency = 4

	maxTextFileSize  = 1 << 20
	maxErrorBodySize = 1 << 10
)

// Client is a hub client. The zero value is not usable; use NewClient.
type Client struct {
	Endpoint string
	Token    string
	Revision string
	// Concurrency bounds parallel file downloads.
	Concurrency int
	// Ignore holds path.Match patterns of repository files not to download.
	Ignore     []string
	HTTPClient *http.Client
	Log        logging.Logger

	mu sync.Mutex
	// resolved maps model ids to the commit their last Download used.
	resolved map[string]string
}

// NewClient creates a client for endpoint. An empty endpoint means
// DefaultEndpoint; an empty token means anonymous access.
func NewClient(endpoint, token string, log logging.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		Endpoint:    strings.TrimSuffix(endpoint, "/"),
		Token:       token,
		Revision:    DefaultRevision,
		Concurrency: DefaultConcurrency,
		HTTPClient:  http.DefaultClient,
		Log:         log,
	}
}

// ModelURL returns the web page of id.
func (c *Client) ModelURL(id model.ID) string {
	return c.Endpoint + "/" + escapePath(id.String())
}

type repoInfo struct {
	SHA      string    `json:"sha"`
	Siblings []sibling `json:"siblings"`
}

type sibling struct {
	RFilename string `json:"rfilename"`
	Size      int64  `json:"size"`
	LFS       *struct {
		SHA256 string `json:"sha256"`
		Size   int64  `json:"size"`
	} `json:"lfs,omitempty"`
}

// Download implements source.Source. The revision is resolved to a commit
// once so every file comes from the same snapshot.
func (c *Client) Download(ctx context.Context, id model.ID, destDir string) (string, error) {
	log := c.Log.WithFields(logrus.Fields{"model": logging.SanitizeForLog(id.String())})

	info, err := c.repoInfo(ctx, id)
	if err != nil {
		return "", err
	}
	revision := info.SHA
	if revision == "" {
		revision = c.revision()
	}
	c.setResolved(id, revision)

	var files []sibling
	var total int64
	for _, s := range info.Siblings {
		if !filepath.IsLocal(filepath.FromSlash(s.RFilename)) {
			return "", source.NewError(id, "list", 0, fmt.Errorf("refusing unsafe file name %q", s.RFilename))
		}
		if c.ignored(s.RFilename) {
			log.WithField("file", logging.SanitizeForLog(s.RFilename)).Debug("Skipping ignored file")
			continue
		}
		files = append(files, s)
		total += s.size()
	}
	if len(files) == 0 {
		return "", source.NewError(id, "list", 0, errors.New("repository has no files"))
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", source.NewError(id, "download", 0, err)
	}

	log.WithFields(logrus.Fields{
		"files":    len(files),
		"size":     units.HumanSize(float64(total)),
		"revision": revision,
	}).Info("Downloading model")
	start := time.Now()

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency())
	for _, f := range files {
		g.Go(func() error {
			if err := c.downloadFile(gctx, id, revision, f, destDir); err != nil {
				return err
			}
			n := done.Add(1)
			log.WithFields(logrus.Fields{
				"file":     logging.SanitizeForLog(f.RFilename),
				"progress": fmt.Sprintf("%d/%d", n, len(files)),
			}).Debug("Downloaded file")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	log.WithField("duration", time.Since(start).Round(time.Millisecond)).Info("Model downloaded")
	return destDir, nil
}

// FetchTextFile implements source.Source. After a Download of id the file
// is read from the same commit as the downloaded files.
func (c *Client) FetchTextFile(ctx context.Context, id model.ID, name string) (string, error) {
	resp, err := c.get(ctx, c.resolveURL(id, c.revisionFor(id), name))
	if err != nil {
		return "", source.NewError(id, "fetch "+name, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkResponse(id, "fetch "+name, resp); err != nil {
		return "", err
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTextFileSize+1))
	if err != nil {
		return "", source.NewError(id, "fetch "+name, 0, err)
	}
	if len(data) > maxTextFileSize {
		return "", source.NewError(id, "fetch "+name, 0, fmt.Errorf("file exceeds %s", units.BytesSize(maxTextFileSize)))
	}
	return string(data), nil
}

func (c *Client) repoInfo(ctx context.Context, id model.ID) (*repoInfo, error) {
	u := fmt.Sprintf("%s/api/models/%s/revision/%s?blobs=true",
		c.Endpoint, escapePath(id.String()), url.PathEscape(c.revision()))
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, source.NewError(id, "list", 0, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkResponse(id, "list", resp); err != nil {
		return nil, err
	}
	var info repoInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, source.NewError(id, "list", 0, fmt.Errorf("decode repository info: %w", err))
	}
	return &info, nil
}

func (c *Client) downloadFile(ctx context.Context, id model.ID, revision string, f sibling, destDir string) error {
	op := "download " + f.RFilename
	target := filepath.Join(destDir, filepath.FromSlash(f.RFilename))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return source.NewError(id, op, 0, err)
	}

	var verifier digest.Verifier
	var expected digest.Digest
	if f.LFS != nil && f.LFS.SHA256 != "" {
		expected = digest.NewDigestFromEncoded(digest.SHA256, f.LFS.SHA256)
		if err := expected.Validate(); err != nil {
			return source.NewError(id, op, 0, fmt.Errorf("invalid checksum in listing: %w", err))
		}
		verifier = expected.Verifier()
	}

	resp, err := c.get(ctx, c.resolveURL(id, revision, f.RFilename))
	if err != nil {
		return source.NewError(id, op, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if err := checkResponse(id, op, resp); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return source.NewError(id, op, 0, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	var w io.Writer = tmp
	if verifier != nil {
		w = io.MultiWriter(tmp, verifier)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		_ = tmp.Close()
		return source.NewError(id, op, 0, err)
	}
	if err := tmp.Close(); err != nil {
		return source.NewError(id, op, 0, err)
	}
	if verifier != nil && !verifier.Verified() {
		return source.NewError(id, op, 0, fmt.Errorf("checksum mismatch: expected %s", expected))
	}
	if err := os.Rename(tmpName, target); err != nil {
		return source.NewError(id, op, 0, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("User-Agent", "model-converter")
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

func (c *Client) resolveURL(id model.ID, revision, name string) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s",
		c.Endpoint, escapePath(id.String()), url.PathEscape(revision), escapePath(name))
}

func (c *Client) revision() string {
	if c.Revision == "" {
		return DefaultRevision
	}
	return c.Revision
}

func (c *Client) setResolved(id model.ID, revision string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved == nil {
		c.resolved = make(map[string]string)
	}
	c.resolved[id.String()] = revision
}

func (c *Client) revisionFor(id model.ID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rev, ok := c.resolved[id.String()]; ok {
		return rev
	}
	return c.revision()
}

func (c *Client) concurrency() int {
	if c.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return c.Concurrency
}

func (c *Client) ignored(name string) bool {
	for _, pattern := range c.Ignore {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (s sibling) size() int64 {
	if s.LFS != nil && s.LFS.Size > 0 {
		return s.LFS.Size
	}
	return s.Size
}

func checkResponse(id model.ID, op string, resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	msg := resp.Header.Get("X-Error-Message")
	if msg == "" {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return source.NewError(id, op, resp.StatusCode, errors.New(msg))
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

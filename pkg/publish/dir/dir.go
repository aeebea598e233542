// Package dir publishes converted models into a local directory tree laid
// out as <root>/<namespace>/<name>/.
package dir

import (
	"bytes"
	"context"
	_ "crypto/sha256" // register the digest algorithm
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/publish"
)

const (
	// EntryFileName holds the entry's Options.
	EntryFileName = "entry.json"
	// CommitsFileName records one JSON line per uploaded file.
	CommitsFileName = "commits.jsonl"
)

// Entry is the content of EntryFileName.
type Entry struct {
	ID          string             `json:"id"`
	Visibility  publish.Visibility `json:"visibility"`
	License     string             `json:"license,omitempty"`
	DisplayName string             `json:"display_name,omitempty"`
	Description string             `json:"description,omitempty"`
	SourceURL   string             `json:"source_url,omitempty"`
}

// Commit is one line of CommitsFileName.
type Commit struct {
	Path    string        `json:"path"`
	Digest  digest.Digest `json:"digest"`
	Size    int64         `json:"size"`
	Message string        `json:"message,omitempty"`
}

// Destination publishes into a directory.
type Destination struct {
	Root string
	Log  logging.Logger

	mu sync.Mutex
}

// New creates a Destination rooted at root.
func New(root string, log logging.Logger) *Destination {
	return &Destination{Root: root, Log: log}
}

func (d *Destination) entryDir(destID string) (string, error) {
	ns, name, err := publish.SplitDestID(destID)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.Root, ns, name), nil
}

// EnsureEntry implements publish.Destination.
func (d *Destination) EnsureEntry(_ context.Context, destID string, opts publish.Options) error {
	dir, err := d.entryDir(destID)
	if err != nil {
		return publish.NewError(destID, "ensure entry", err)
	}
	entryPath := filepath.Join(dir, EntryFileName)
	if _, err := os.Stat(entryPath); err == nil {
		d.Log.WithField("destination", destID).Info("Entry already exists")
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return publish.NewError(destID, "ensure entry", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return publish.NewError(destID, "ensure entry", err)
	}
	visibility := opts.Visibility
	if visibility == "" {
		visibility = publish.Public
	}
	data, err := json.MarshalIndent(Entry{
		ID:          destID,
		Visibility:  visibility,
		License:     opts.License,
		DisplayName: opts.DisplayName,
		Description: opts.Description,
		SourceURL:   opts.SourceURL,
	}, "", "  ")
	if err != nil {
		return publish.NewError(destID, "ensure entry", err)
	}
	if err := writeAtomic(entryPath, bytes.NewReader(data)); err != nil {
		return publish.NewError(destID, "ensure entry", err)
	}
	d.Log.WithField("destination", destID).Info("Created entry")
	return nil
}

// UploadFile implements publish.Destination. The file is copied in under a
// temporary name and renamed into place.
func (d *Destination) UploadFile(_ context.Context, destID, localPath, remotePath, commitMessage string) error {
	op := "upload " + remotePath
	dir, err := d.entryDir(destID)
	if err != nil {
		return publish.NewError(destID, op, err)
	}
	if !filepath.IsLocal(remotePath) {
		return publish.NewError(destID, op, fmt.Errorf("invalid remote path %q", remotePath))
	}
	if _, err := os.Stat(filepath.Join(dir, EntryFileName)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return publish.NewError(destID, op, publish.ErrNoEntry)
		}
		return publish.NewError(destID, op, err)
	}

	in, err := os.Open(localPath)
	if err != nil {
		return publish.NewError(destID, op, err)
	}
	defer in.Close()

	target := filepath.Join(dir, remotePath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return publish.NewError(destID, op, err)
	}
	digester := digest.Canonical.Digester()
	counter := &countingReader{r: io.TeeReader(in, digester.Hash())}
	if err := writeAtomic(target, counter); err != nil {
		return publish.NewError(destID, op, err)
	}

	commit := Commit{Path: filepath.ToSlash(remotePath), Digest: digester.Digest(), Size: counter.n, Message: commitMessage}
	if err := d.appendCommit(dir, commit); err != nil {
		return publish.NewError(destID, op, err)
	}
	d.Log.WithFields(logrus.Fields{
		"destination": destID,
		"file":        commit.Path,
		"digest":      commit.Digest.String(),
	}).Info("Uploaded file")
	return nil
}

func (d *Destination) appendCommit(dir string, c Commit) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	line, err := json.Marshal(c)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, CommitsFileName), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeAtomic(target string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, target)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

package dir

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"

	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/publish"
)

const destID = "me/tiny-model-Q8_0-GGUF"

func TestEnsureEntryAndUpload(t *testing.T) {
	root := t.TempDir()
	d := New(root, logging.Discard())

	opts := publish.Options{Visibility: publish.Private, License: "other", DisplayName: "tiny-model-Q8_0-GGUF"}
	require.NoError(t, d.EnsureEntry(t.Context(), destID, opts))

	data, err := os.ReadFile(filepath.Join(root, "me", "tiny-model-Q8_0-GGUF", EntryFileName))
	require.NoError(t, err)
	var entry Entry
	require.NoError(t, json.Unmarshal(data, &entry))
	require.Equal(t, destID, entry.ID)
	require.Equal(t, publish.Private, entry.Visibility)
	require.Equal(t, "other", entry.License)

	local := filepath.Join(t.TempDir(), "tiny-model-q8_0.gguf")
	require.NoError(t, os.WriteFile(local, []byte("gguf bytes"), 0o644))
	require.NoError(t, d.UploadFile(t.Context(), destID, local, "tiny-model-q8_0.gguf", "Add Q8_0 GGUF"))

	published, err := os.ReadFile(filepath.Join(root, "me", "tiny-model-Q8_0-GGUF", "tiny-model-q8_0.gguf"))
	require.NoError(t, err)
	require.Equal(t, "gguf bytes", string(published))

	commits, err := os.ReadFile(filepath.Join(root, "me", "tiny-model-Q8_0-GGUF", CommitsFileName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(commits)), "\n")
	require.Len(t, lines, 1)
	var c Commit
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &c))
	require.Equal(t, "tiny-model-q8_0.gguf", c.Path)
	require.Equal(t, digest.FromString("gguf bytes"), c.Digest)
	require.Equal(t, int64(len("gguf bytes")), c.Size)
	require.Equal(t, "Add Q8_0 GGUF", c.Message)
}

func TestEnsureEntryIsIdempotent(t *testing.T) {
	root := t.TempDir()
	d := New(root, logging.Discard())
	require.NoError(t, d.EnsureEntry(t.Context(), destID, publish.Options{License: "mit"}))
	require.NoError(t, d.EnsureEntry(t.Context(), destID, publish.Options{License: "apache-2.0"}))

	data, err := os.ReadFile(filepath.Join(root, "me", "tiny-model-Q8_0-GGUF", EntryFileName))
	require.NoError(t, err)
	require.Contains(t, string(data), `"license": "mit"`)
	require.Contains(t, string(data), `"visibility": "public"`)
}

func TestUploadWithoutEntry(t *testing.T) {
	d := New(t.TempDir(), logging.Discard())
	local := filepath.Join(t.TempDir(), "README.md")
	require.NoError(t, os.WriteFile(local, []byte("card"), 0o644))

	err := d.UploadFile(t.Context(), destID, local, "README.md", "")
	require.True(t, errors.Is(err, publish.ErrNoEntry))
	var pubErr *publish.Error
	require.True(t, errors.As(err, &pubErr))
	require.Equal(t, destID, pubErr.DestID)
}

func TestUploadMissingLocalFile(t *testing.T) {
	d := New(t.TempDir(), logging.Discard())
	require.NoError(t, d.EnsureEntry(t.Context(), destID, publish.Options{}))
	err := d.UploadFile(t.Context(), destID, filepath.Join(t.TempDir(), "nope"), "README.md", "")
	require.Error(t, err)
}

func TestInvalidPaths(t *testing.T) {
	d := New(t.TempDir(), logging.Discard())
	require.Error(t, d.EnsureEntry(t.Context(), "not-an-id", publish.Options{}))
	require.NoError(t, d.EnsureEntry(t.Context(), destID, publish.Options{}))
	require.Error(t, d.UploadFile(t.Context(), destID, "x", "../escape", ""))
}

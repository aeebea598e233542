package dir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/model"
	"github.com/docker/model-converter/pkg/source"
)

func mirror(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestDownload(t *testing.T) {
	root := mirror(t, map[string]string{
		"org/tiny-model/config.json":       "{}",
		"org/tiny-model/model.safetensors": "weights",
		"org/tiny-model/sub/tokenizer.txt": "tok",
		"org/other/config.json":            "{}",
	})
	s := New(root, logging.Discard())

	dest := filepath.Join(t.TempDir(), "bundle")
	dir, err := s.Download(t.Context(), model.MustParse("org/tiny-model"), dest)
	require.NoError(t, err)
	require.Equal(t, dest, dir)

	data, err := os.ReadFile(filepath.Join(dest, "model.safetensors"))
	require.NoError(t, err)
	require.Equal(t, "weights", string(data))
	data, err = os.ReadFile(filepath.Join(dest, "sub", "tokenizer.txt"))
	require.NoError(t, err)
	require.Equal(t, "tok", string(data))
}

func TestDownloadMissingModel(t *testing.T) {
	s := New(t.TempDir(), logging.Discard())
	_, err := s.Download(t.Context(), model.MustParse("org/missing"), t.TempDir())
	require.Error(t, err)
	require.True(t, errors.Is(err, source.ErrNotFound))
}

func TestDownloadCancelled(t *testing.T) {
	root := mirror(t, map[string]string{"org/tiny-model/config.json": "{}"})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := New(root, logging.Discard()).Download(ctx, model.MustParse("org/tiny-model"), t.TempDir())
	require.Error(t, err)
}

func TestFetchTextFile(t *testing.T) {
	root := mirror(t, map[string]string{"org/tiny-model/README.md": "---\nlicense: mit\n---\n"})
	s := New(root, logging.Discard())

	doc, err := s.FetchTextFile(t.Context(), model.MustParse("org/tiny-model"), "README.md")
	require.NoError(t, err)
	require.Equal(t, "---\nlicense: mit\n---\n", doc)

	_, err = s.FetchTextFile(t.Context(), model.MustParse("org/tiny-model"), "../../secret")
	require.Error(t, err)

	_, err = s.FetchTextFile(t.Context(), model.MustParse("org/tiny-model"), "NOPE.md")
	require.True(t, errors.Is(err, source.ErrNotFound))
}

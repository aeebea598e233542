// Package dir serves model bundles from a local mirror laid out as
// <root>/<namespace>/<name>/.
package dir

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/docker/model-converter/pkg/logging"
	"github.com/docker/model-converter/pkg/model"
	"github.com/docker/model-converter/pkg/source"
)

// Source is a local mirror.
type Source struct {
	Root string
	Log  logging.Logger
}

// New creates a Source rooted at root.
func New(root string, log logging.Logger) *Source {
	return &Source{Root: root, Log: log}
}

func (s *Source) modelDir(id model.ID) string {
	return filepath.Join(s.Root, id.Namespace(), id.Name())
}

// ModelURL returns a file URL for id's mirror directory.
func (s *Source) ModelURL(id model.ID) string {
	abs, err := filepath.Abs(s.modelDir(id))
	if err != nil {
		abs = s.modelDir(id)
	}
	return "file://" + filepath.ToSlash(abs)
}

// Download implements source.Source by copying the mirrored tree into
// destDir. Only regular files are copied.
func (s *Source) Download(ctx context.Context, id model.ID, destDir string) (string, error) {
	src := s.modelDir(id)
	fi, err := os.Stat(src)
	if err != nil {
		return "", source.NewError(id, "list", 0, err)
	}
	if !fi.IsDir() {
		return "", source.NewError(id, "list", 0, fmt.Errorf("%s is not a directory", src))
	}

	var copied int
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)
		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type().IsRegular():
			copied++
			return copyFile(path, target)
		default:
			return nil
		}
	})
	if err != nil {
		return "", source.NewError(id, "download", 0, err)
	}

	s.Log.WithFields(logrus.Fields{
		"model": logging.SanitizeForLog(id.String()),
		"files": copied,
		"from":  src,
	}).Info("Copied model from mirror")
	return destDir, nil
}

// FetchTextFile implements source.Source.
func (s *Source) FetchTextFile(_ context.Context, id model.ID, name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", source.NewError(id, "fetch "+name, 0, fmt.Errorf("invalid file name %q", name))
	}
	data, err := os.ReadFile(filepath.Join(s.modelDir(id), name))
	if err != nil {
		return "", source.NewError(id, "fetch "+name, 0, err)
	}
	return string(data), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

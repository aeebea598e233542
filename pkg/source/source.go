// Package source defines how model bundles are acquired from a source
// registry.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/docker/model-converter/pkg/model"
)

var (
	ErrNotFound     = errors.New("model not found")
	ErrUnauthorized = errors.New("unauthorized access to model")
)

// Source is a registry that model bundles can be downloaded from.
type Source interface {
	// Download fetches the full file set of id into destDir and returns the
	// bundle directory. It blocks until every file is on disk.
	Download(ctx context.Context, id model.ID, destDir string) (string, error)
	// FetchTextFile returns the content of one file of id.
	FetchTextFile(ctx context.Context, id model.ID, name string) (string, error)
}

// Error is returned by sources when acquisition fails.
type Error struct {
	ID string
	// Op is the operation that failed, e.g. "list" or "download".
	Op string
	// StatusCode is the HTTP status, or 0 when not applicable.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.ID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for Error
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404 || errors.Is(e.Err, fs.ErrNotExist)
	case ErrUnauthorized:
		return e.StatusCode == 401 || e.StatusCode == 403
	default:
		return false
	}
}

// NewError creates a new Error
func NewError(id model.ID, op string, statusCode int, err error) error {
	return &Error{
		ID:         id.String(),
		Op:         op,
		StatusCode: statusCode,
		Err:        err,
	}
}

// Package publish defines destination registries that converted models are
// published to.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidVisibility = errors.New("invalid visibility")
	ErrNoEntry           = errors.New("destination entry does not exist")
)

// Visibility controls who can see a published entry.
type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

// ParseVisibility parses "public" or "private" (case-insensitive). Empty
// means Public.
func ParseVisibility(s string) (Visibility, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(Public):
		return Public, nil
	case string(Private):
		return Private, nil
	default:
		return "", fmt.Errorf("%w %q: must be %q or %q", ErrInvalidVisibility, s, Public, Private)
	}
}

// Options describe a destination entry.
type Options struct {
	Visibility    Visibility
	License       string
	DisplayName   string
	CommitMessage string
	// Description is a short summary stored with the entry where the
	// destination supports it.
	Description string
	// SourceURL links back to the upstream model where supported.
	SourceURL string
}

// Destination is a registry that converted models are published to.
type Destination interface {
	// EnsureEntry creates the entry destID if it does not exist. It
	// succeeds when the entry already exists.
	EnsureEntry(ctx context.Context, destID string, opts Options) error
	// UploadFile stores localPath as remotePath within destID.
	UploadFile(ctx context.Context, destID, localPath, remotePath, commitMessage string) error
}

// Error is returned by destinations when publishing fails.
type Error struct {
	DestID string
	// Op is the failed operation, e.g. "ensure entry" or "upload README.md".
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publish %s: %s: %v", e.DestID, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error
func NewError(destID, op string, err error) error {
	return &Error{DestID: destID, Op: op, Err: err}
}

// SplitDestID splits "<namespace>/<name>" into its parts.
func SplitDestID(destID string) (string, string, error) {
	ns, name, ok := strings.Cut(destID, "/")
	if !ok || ns == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid destination id %q", destID)
	}
	return ns, name, nil
}

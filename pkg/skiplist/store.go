// Package skiplist persists the identifiers of models that are known to fail
// conversion permanently, so later runs can skip them without doing any work.
//
// The store is a plain text file with one identifier per line. Blank lines and
// lines starting with '#' are ignored, which keeps the file safe to edit by
// hand and to concatenate with other skip-lists. A missing file is an empty
// store.
package skiplist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidEntry is returned by Record for identifiers that cannot be stored
// on a single line.
var ErrInvalidEntry = errors.New("invalid skip-list entry")

// Error is returned for any failure to read or write the store.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("skip-list %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Store is a durable, append-only set of identifiers backed by a file.
type Store struct {
	path string
}

// Open returns a store backed by the file at path. The file is not touched
// until the first read or write.
func Open(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Contains reports whether id was previously recorded.
func (s *Store) Contains(id string) (bool, error) {
	entries, err := s.List()
	if err != nil {
		return false, err
	}
	id = strings.TrimSpace(id)
	for _, entry := range entries {
		if entry == id {
			return true, nil
		}
	}
	return false, nil
}

// List returns the recorded identifiers in file order, without duplicates.
func (s *Store) List() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &Error{Op: "open", Path: s.path, Err: err}
	}
	defer f.Close()

	if err := lockShared(f); err != nil {
		return nil, &Error{Op: "lock", Path: s.path, Err: err}
	}
	defer unlock(f)

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &Error{Op: "read", Path: s.path, Err: err}
	}
	return parse(data), nil
}

// Record durably appends id. Recording an identifier that is already present
// leaves the file unchanged.
func (s *Store) Record(id string) error {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, "\r\n") || strings.HasPrefix(id, "#") {
		return &Error{Op: "record", Path: s.path, Err: fmt.Errorf("%w: %q", ErrInvalidEntry, id)}
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &Error{Op: "create directory", Path: s.path, Err: err}
		}
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return &Error{Op: "open", Path: s.path, Err: err}
	}
	defer f.Close()

	// Hold the exclusive lock across the membership check and the append so
	// concurrent recorders do not interleave partial lines.
	if err := lockExclusive(f); err != nil {
		return &Error{Op: "lock", Path: s.path, Err: err}
	}
	defer unlock(f)

	data, err := io.ReadAll(f)
	if err != nil {
		return &Error{Op: "read", Path: s.path, Err: err}
	}
	for _, entry := range parse(data) {
		if entry == id {
			return nil
		}
	}

	line := id + "\n"
	if len(data) > 0 && data[len(data)-1] != '\n' {
		line = "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		return &Error{Op: "append", Path: s.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &Error{Op: "sync", Path: s.path, Err: err}
	}
	return nil
}

func parse(data []byte) []string {
	var entries []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		entries = append(entries, line)
	}
	return entries
}

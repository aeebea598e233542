// Package model holds the identifier types shared by every pipeline stage and
// the pure naming rules derived from them.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Separator splits the namespace from the model name.
const Separator = "/"

// ErrInvalidID is returned by Parse for identifiers that are not of the form
// <namespace>/<name>.
var ErrInvalidID = errors.New("invalid model identifier")

// ID names a model in the source registry.
type ID struct {
	namespace string
	name      string
}

// Parse validates and splits a source identifier.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	namespace, name, ok := strings.Cut(s, Separator)
	if !ok {
		return ID{}, fmt.Errorf("%w %q: missing %q separator", ErrInvalidID, s, Separator)
	}
	if namespace == "" || name == "" {
		return ID{}, fmt.Errorf("%w %q: empty namespace or name", ErrInvalidID, s)
	}
	if strings.Contains(name, Separator) {
		return ID{}, fmt.Errorf("%w %q: more than one %q separator", ErrInvalidID, s, Separator)
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return ID{}, fmt.Errorf("%w %q: contains whitespace", ErrInvalidID, s)
	}
	return ID{namespace: namespace, name: name}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// Namespace returns the part before the separator.
func (id ID) Namespace() string {
	return id.namespace
}

// Name returns the short model name, the part after the separator.
func (id ID) Name() string {
	return id.name
}

// String returns the identifier in its original <namespace>/<name> form.
func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.namespace + Separator + id.name
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id.namespace == "" && id.name == ""
}

// DestinationName returns the repository name used at the destination,
// without the publisher namespace.
func DestinationName(id ID, scheme string) string {
	return fmt.Sprintf("%s-%s-GGUF", id.Name(), scheme)
}

// DestinationID derives the destination identifier for a converted model:
// <namespace>/<model-short-name>-<scheme>-GGUF.
func DestinationID(namespace string, id ID, scheme string) string {
	return namespace + Separator + DestinationName(id, scheme)
}

// ArtifactFileName is the file name of the quantized GGUF artifact.
func ArtifactFileName(id ID, scheme string) string {
	return strings.ToLower(id.Name()+"-"+scheme) + ".gguf"
}

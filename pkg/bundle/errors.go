package bundle

import (
	"errors"
	"fmt"
)

var (
	ErrNoWeightFiles = errors.New("no weight files found")
	ErrMissingConfig = errors.New("configuration descriptor missing")
)

// Kind classifies a ValidationError.
type Kind int

const (
	NoWeightFiles Kind = iota
	MissingConfig
)

func (k Kind) String() string {
	switch k {
	case NoWeightFiles:
		return "NoWeightFiles"
	case MissingConfig:
		return "MissingConfig"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ValidationError reports why a bundle is not convertible.
type ValidationError struct {
	Kind Kind
	Dir  string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case NoWeightFiles:
		return fmt.Sprintf("%s in %s (recognised suffixes: %v)", ErrNoWeightFiles, e.Dir, weightExtensions)
	case MissingConfig:
		return fmt.Sprintf("%s: %s not found in %s", ErrMissingConfig, ConfigFileName, e.Dir)
	default:
		return fmt.Sprintf("invalid bundle %s: %s", e.Dir, e.Kind)
	}
}

// Is implements error matching for ValidationError
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrNoWeightFiles:
		return e.Kind == NoWeightFiles
	case ErrMissingConfig:
		return e.Kind == MissingConfig
	default:
		return false
	}
}

package tool

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSpawnFailed   = errors.New("tool could not be started")
	ErrNonZeroExit   = errors.New("tool exited unsuccessfully")
	ErrMissingOutput = errors.New("tool produced no output")
)

// ErrorKind classifies a ToolError.
type ErrorKind int

const (
	// SpawnFailed means the process could not be started at all.
	SpawnFailed ErrorKind = iota
	// NonZeroExit means the process ran and reported failure, or was
	// interrupted.
	NonZeroExit
	// MissingOutput means the process reported success but did not leave
	// the expected output file behind.
	MissingOutput
)

func (k ErrorKind) String() string {
	switch k {
	case SpawnFailed:
		return "SpawnFailed"
	case NonZeroExit:
		return "NonZeroExit"
	case MissingOutput:
		return "MissingOutput"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ToolError is returned when an external tool invocation fails. It carries
// the complete captured output so callers can log it.
type ToolError struct {
	Kind ErrorKind
	// Command is the rendered command line.
	Command string
	// ExitCode is the process exit code, or -1 when unavailable.
	ExitCode int
	Stdout   string
	Stderr   string
	// StderrTail is the last few KiB of Stderr, used in Error().
	StderrTail string
	// Err is the underlying cause, if any.
	Err error
}

func (e *ToolError) Error() string {
	var b strings.Builder
	switch e.Kind {
	case SpawnFailed:
		fmt.Fprintf(&b, "failed to start %s", e.Command)
	case NonZeroExit:
		fmt.Fprintf(&b, "%s exited with code %d", e.Command, e.ExitCode)
	case MissingOutput:
		fmt.Fprintf(&b, "%s exited successfully but produced no output", e.Command)
	default:
		fmt.Fprintf(&b, "%s failed (%s)", e.Command, e.Kind)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.StderrTail != "" {
		fmt.Fprintf(&b, "\nstderr:\n%s", e.StderrTail)
	}
	return b.String()
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Is implements error matching for ToolError
func (e *ToolError) Is(target error) bool {
	switch target {
	case ErrSpawnFailed:
		return e.Kind == SpawnFailed
	case ErrNonZeroExit:
		return e.Kind == NonZeroExit
	case ErrMissingOutput:
		return e.Kind == MissingOutput
	default:
		return false
	}
}

// AsToolError extracts a *ToolError from err's chain.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

package pipeline

import "fmt"

// Status is the terminal state of a run.
type Status int

const (
	Succeeded Status = iota
	SkippedKnownUnsupported
	FailedValidation
	FailedConversion
	FailedQuantization
	FailedPublish
)

// Process exit codes. ExitConfigError covers everything that happens before
// a run can produce an Outcome: bad configuration and an unreadable skip-list.
const (
	ExitOK                 = 0
	ExitConfigError        = 1
	ExitFailedValidation   = 2
	ExitFailedConversion   = 3
	ExitFailedQuantization = 4
	ExitFailedPublish      = 5
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "Succeeded"
	case SkippedKnownUnsupported:
		return "SkippedKnownUnsupported"
	case FailedValidation:
		return "FailedValidation"
	case FailedConversion:
		return "FailedConversion"
	case FailedQuantization:
		return "FailedQuantization"
	case FailedPublish:
		return "FailedPublish"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Failed reports whether s is one of the failure states.
func (s Status) Failed() bool {
	return s != Succeeded && s != SkippedKnownUnsupported
}

// ExitCode maps a status to the process exit code.
func ExitCode(s Status) int {
	switch s {
	case Succeeded, SkippedKnownUnsupported:
		return ExitOK
	case FailedValidation:
		return ExitFailedValidation
	case FailedConversion:
		return ExitFailedConversion
	case FailedQuantization:
		return ExitFailedQuantization
	case FailedPublish:
		return ExitFailedPublish
	default:
		return ExitConfigError
	}
}

// Outcome is the result of one run.
type Outcome struct {
	Status Status
	// DestinationID is set for every run that got past the skip check.
	DestinationID string
	// Err is the error that ended a failed run.
	Err error
}

// ExitCode returns ExitCode(o.Status).
func (o Outcome) ExitCode() int {
	return ExitCode(o.Status)
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Status, o.Err)
	}
	if o.Status == Succeeded {
		return fmt.Sprintf("%s (%s)", o.Status, o.DestinationID)
	}
	return o.Status.String()
}

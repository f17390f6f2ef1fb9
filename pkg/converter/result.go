package converter

import (
	"errors"
	"fmt"
	"time"
)

// ErrToolNotFound is returned when the converter executable is not installed
// at the configured location
var ErrToolNotFound = errors.New("converter tool not found")

// Outcome classifies how a conversion ended
type Outcome int

const (
	Succeeded Outcome = iota
	ToolMissing
	ToolReportedFailure
	OutputMissing
	WrongFormat
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case ToolMissing:
		return "tool missing"
	case ToolReportedFailure:
		return "tool reported failure"
	case OutputMissing:
		return "output missing"
	case WrongFormat:
		return "wrong format"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Job is one conversion request with absolute paths
type Job struct {
	ID     string
	Input  string
	Output string
}

// Result is produced once per job and never changed afterwards
type Result struct {
	JobID     string
	Succeeded bool
	Output    string
	Outcome   Outcome
	// ExitCode is -1 when the process could not be started or was killed
	ExitCode int
	// Diagnostic holds the tool's captured stderr and stdout, or the reason
	// verification failed
	Diagnostic string
	Duration   time.Duration
}

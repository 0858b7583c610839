package pipeline

import (
	"errors"
	"fmt"

	"github.com/nvandessel/impairsim/internal/dispatch"
	"github.com/nvandessel/impairsim/internal/record"
)

// Exit codes of the impairsim process.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitUsage         = 2
	ExitInputNotFound = 2
	ExitLaunchFailure = dispatch.ExitLaunchFailure
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindInputNotFound
	KindParse
	KindWrite
	KindLaunch
	KindDispatch
	KindRecord
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindInputNotFound:
		return "input_not_found"
	case KindParse:
		return "parse"
	case KindWrite:
		return "write"
	case KindLaunch:
		return "launch"
	case KindDispatch:
		return "dispatch"
	case KindRecord:
		return "record"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a stage failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// ExitCode maps the failure to the process exit status.
func (e *Error) ExitCode() int {
	switch e.Kind {
	case KindConfig:
		return ExitUsage
	case KindInputNotFound:
		return ExitInputNotFound
	case KindLaunch:
		return ExitLaunchFailure
	case KindDispatch:
		var nz *dispatch.NonZeroExitError
		if errors.As(e.Err, &nz) {
			return nz.ExitCode()
		}
	}
	return ExitFailure
}

// ExitCode maps any error returned by Run to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return ExitFailure
}

// ClassifyLoad wraps a loader error with its kind.
func ClassifyLoad(err error) error {
	var pe *record.ParseError
	switch {
	case errors.Is(err, record.ErrInputNotFound):
		return &Error{Kind: KindInputNotFound, Err: err}
	case errors.As(err, &pe):
		return &Error{Kind: KindParse, Err: err}
	}
	return &Error{Kind: KindParse, Err: fmt.Errorf("loading input: %w", err)}
}

// classifyDispatch wraps a dispatcher error with its kind.
func classifyDispatch(err error) error {
	var le *dispatch.LaunchError
	if errors.As(err, &le) {
		return &Error{Kind: KindLaunch, Err: err}
	}
	return &Error{Kind: KindDispatch, Err: err}
}

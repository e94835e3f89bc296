// Package errs defines the error taxonomy shared by every airbender command.
// Each failure carries a Code that decides the process exit status; the
// pipeline never retries, so every Error is terminal.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Code classifies a pipeline failure.
type Code int

const (
	Internal Code = iota
	MalformedInput
	ProgramLoadError
	CycleBudgetExceeded
	ProgramExceedsCapacity
	BackendUnavailable
	UnsatisfiedConstraint
	CorruptArtifact
	LevelMismatch
	IOError
	Interrupted
)

var codeNames = map[Code]string{
	Internal:               "internal error",
	MalformedInput:         "malformed input",
	ProgramLoadError:       "program load error",
	CycleBudgetExceeded:    "cycle budget exceeded",
	ProgramExceedsCapacity: "program exceeds capacity",
	BackendUnavailable:     "backend unavailable",
	UnsatisfiedConstraint:  "unsatisfied constraint",
	CorruptArtifact:        "corrupt artifact",
	LevelMismatch:          "level mismatch",
	IOError:                "io error",
	Interrupted:            "interrupted",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Process exit statuses.
const (
	ExitOK     = 0
	ExitReject = 1
	ExitUsage  = 2
)

// ExitCode returns the process exit status for the code.
func (c Code) ExitCode() int {
	switch c {
	case Internal:
		return 3
	case Interrupted:
		return 130
	default:
		return 9 + int(c)
	}
}

// Error is a classified pipeline failure. Path names the offending file when
// one is involved.
type Error struct {
	Code    Code
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Sentinels for errors.Is.
var (
	ErrInternal               = &Error{Code: Internal}
	ErrMalformedInput         = &Error{Code: MalformedInput}
	ErrProgramLoad            = &Error{Code: ProgramLoadError}
	ErrCycleBudgetExceeded    = &Error{Code: CycleBudgetExceeded}
	ErrProgramExceedsCapacity = &Error{Code: ProgramExceedsCapacity}
	ErrBackendUnavailable     = &Error{Code: BackendUnavailable}
	ErrUnsatisfiedConstraint  = &Error{Code: UnsatisfiedConstraint}
	ErrCorruptArtifact        = &Error{Code: CorruptArtifact}
	ErrLevelMismatch          = &Error{Code: LevelMismatch}
	ErrIO                     = &Error{Code: IOError}
	ErrInterrupted            = &Error{Code: Interrupted}
)

// New returns a classified error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause. A nil cause yields nil.
func Wrap(code Code, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithPath returns a classified error naming the offending file.
func WithPath(code Code, path string, cause error) *Error {
	return &Error{Code: code, Path: path, Cause: cause}
}

// CodeOf extracts the classification of err. Context cancellation maps to
// Interrupted; anything unclassified is Internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Interrupted
	}
	return Internal
}

// ExitCode maps err to a process exit status. A nil error exits 0.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return CodeOf(err).ExitCode()
}

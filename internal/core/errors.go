package core

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/mikey-austin/clautify/internal/ports"
	"github.com/mikey-austin/clautify/pkg/dsl"
)

// Exit codes for the CLI.
const (
	ExitOK       = 0
	ExitRuntime  = 1
	ExitUsage    = 2
	ExitNotFound = 4
)

// ErrorKind classifies a DSLError.
type ErrorKind string

const (
	ErrSyntax               ErrorKind = "syntax"
	ErrNoResults            ErrorKind = "no_results"
	ErrInvalidVolume        ErrorKind = "invalid_volume"
	ErrVolumeUnavailable    ErrorKind = "volume_unavailable"
	ErrDeviceNotFound       ErrorKind = "device_not_found"
	ErrUnsupportedQueueKind ErrorKind = "unsupported_queue_kind"
	ErrUnsupported          ErrorKind = "unsupported"
	ErrUnknownAction        ErrorKind = "unknown_action"
	ErrUnknownQuery         ErrorKind = "unknown_query"
	ErrMalformedCommand     ErrorKind = "malformed_command"
	ErrTransientChannel     ErrorKind = "transient_channel"
	ErrCollaborator         ErrorKind = "collaborator"
)

// DSLError is the only error type returned by Session and Executor.
type DSLError struct {
	Kind    ErrorKind
	Msg     string
	Command *dsl.Command
	// Detail carries nested collaborator detail, when the collaborator
	// reported any.
	Detail string
	Err    error
}

func (e *DSLError) Error() string {
	return e.Msg
}

func (e *DSLError) Unwrap() error {
	return e.Err
}

// Detailer is implemented by collaborator errors that carry a nested
// payload worth surfacing.
type Detailer interface {
	ErrorDetail() string
}

func newError(kind ErrorKind, format string, args ...any) *DSLError {
	return &DSLError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// wrapError converts any dispatch failure into a DSLError. DSL errors
// pass through and only gain the command if they lack one.
func wrapError(cmd dsl.Command, err error) error {
	var dslErr *DSLError
	if errors.As(err, &dslErr) {
		if dslErr.Command == nil {
			dslErr.Command = &cmd
		}
		return dslErr
	}

	kind := ErrCollaborator
	if errors.Is(err, ports.ErrChannelLost) {
		kind = ErrTransientChannel
	}
	msg := fmt.Sprintf("%s: %v", typeName(err), err)
	detail := ""
	var d Detailer
	if errors.As(err, &d) {
		detail = d.ErrorDetail()
		if detail != "" {
			msg = fmt.Sprintf("%s (%s)", msg, detail)
		}
	}
	return &DSLError{Kind: kind, Msg: msg, Command: &cmd, Detail: detail, Err: err}
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "Error"
	}
	return t.Name()
}

// IsTransient reports whether err came from a lost playback channel.
func IsTransient(err error) bool {
	return errors.Is(err, ports.ErrChannelLost)
}

// KindOf returns the kind of a DSLError, or "" for other errors.
func KindOf(err error) ErrorKind {
	var dslErr *DSLError
	if errors.As(err, &dslErr) {
		return dslErr.Kind
	}
	return ""
}

// CLIError carries a user-visible message and exit code for failures
// outside command execution (configuration, flags).
type CLIError struct {
	Code int
	Msg  string
	Err  error
}

func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// WrapError creates a CLIError with an underlying error.
func WrapError(code int, msg string, err error) *CLIError {
	return &CLIError{Code: code, Msg: msg, Err: err}
}

// ExitCode returns the CLI exit code for err.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	switch KindOf(err) {
	case ErrSyntax, ErrInvalidVolume, ErrUnsupported, ErrUnsupportedQueueKind,
		ErrUnknownAction, ErrUnknownQuery, ErrMalformedCommand:
		return ExitUsage
	case ErrNoResults, ErrDeviceNotFound:
		return ExitNotFound
	default:
		return ExitRuntime
	}
}

// ReplyCode maps err to a protocol reply error code.
func ReplyCode(err error) string {
	switch ExitCode(err) {
	case ExitUsage:
		return "INVALID"
	case ExitNotFound:
		return "NOT_FOUND"
	}
	if KindOf(err) == ErrTransientChannel || KindOf(err) == ErrVolumeUnavailable {
		return "UNAVAILABLE"
	}
	return "ERROR"
}

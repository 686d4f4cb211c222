package patchwork

import (
	"errors"
	"fmt"
)

// Error is the error type returned by think blocks.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type ErrorKind string

const (
	// ConnectionErrorKind covers transport failures while opening the
	// session, sending the prompt, or reading updates. Fatal to the think
	// block; never retried internally.
	ConnectionErrorKind ErrorKind = "connection_error"
	// NoResultErrorKind means the session stopped without the completion
	// tool ever being invoked.
	NoResultErrorKind ErrorKind = "no_result"
	// ToolExecutionErrorKind covers failures inside a registered tool
	// handler. These are reported back to the agent per invocation and only
	// reach the caller through logs.
	ToolExecutionErrorKind ErrorKind = "tool_execution_error"
	// SchemaErrorKind covers failures deriving a JSON schema for a tool or
	// the output type.
	SchemaErrorKind ErrorKind = "schema_error"
	// InitErrorKind covers invalid builder construction, such as duplicate
	// or reserved tool names.
	InitErrorKind ErrorKind = "init_error"
)

func NewConnectionError(err error) *Error {
	return &Error{
		Kind:    ConnectionErrorKind,
		Message: "connection error",
		Err:     err,
	}
}

func NewNoResultError() *Error {
	return &Error{
		Kind:    NoResultErrorKind,
		Message: "session stopped without invoking the completion tool",
	}
}

func NewToolExecutionError(err error) *Error {
	return &Error{
		Kind:    ToolExecutionErrorKind,
		Message: "tool execution error",
		Err:     err,
	}
}

func NewSchemaError(err error) *Error {
	return &Error{
		Kind:    SchemaErrorKind,
		Message: "schema error",
		Err:     err,
	}
}

func NewInitError(msg string) *Error {
	return &Error{
		Kind:    InitErrorKind,
		Message: fmt.Sprintf("init error: %s", msg),
	}
}

// IsNoResult reports whether err is a no-result error: the session ended
// without the agent calling the completion tool.
func IsNoResult(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == NoResultErrorKind
}

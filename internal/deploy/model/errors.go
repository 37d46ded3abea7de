package model

import (
	"errors"
	"fmt"
)

// Error codes surfaced to API clients.
const (
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeConflict        = "CONFLICT"
	CodeUnreachable     = "UNREACHABLE"
	CodeExecutionFailed = "EXECUTION_FAILED"
	CodeTimeout         = "TIMEOUT"
	CodeBadRequest      = "BAD_REQUEST"
)

var (
	// ErrConflict rejects a trigger while a job is already running for the target.
	ErrConflict = errors.New("deployment already in progress")
	// ErrNoPath marks a target registered without a remote path.
	ErrNoPath = errors.New("no remote path defined for target")
	// ErrTimeout marks an operation that exceeded its wall-clock bound.
	ErrTimeout = errors.New("operation timed out")
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}
}

// UnreachableError carries the preflight failure reason.
type UnreachableError struct {
	Target string
	Reason string
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("target %s unreachable: %s", e.Target, e.Reason)
}

// ExecError distinguishes a session/connection failure from a script that ran
// and exited non-zero.
type ExecError struct {
	Target     string
	Reason     string
	Connection bool // true when the session itself failed
}

func (e *ExecError) Error() string {
	if e.Connection {
		return fmt.Sprintf("session to %s failed: %s", e.Target, e.Reason)
	}
	return fmt.Sprintf("deploy on %s failed: %s", e.Target, e.Reason)
}

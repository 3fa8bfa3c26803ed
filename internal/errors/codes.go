package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code identifies a class of repository failure.
type Code int

const (
	CodeOK Code = 0

	// Caller errors
	CodeInvalidArgument       Code = 1000
	CodeNotFound              Code = 1001
	CodeUnsupportedCapability Code = 1002
	CodeMarkNotSet            Code = 1003
	CodeFrozen                Code = 1004
	CodeClosed                Code = 1005
	CodeAlreadyExists         Code = 1006

	// Server errors
	CodeIOFailure          Code = 2000
	CodeCorruptionDetected Code = 2001
	CodeReplicationLogging Code = 2002
	CodeInternal           Code = 2003
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeUnsupportedCapability:
		return "UNSUPPORTED_CAPABILITY"
	case CodeMarkNotSet:
		return "MARK_NOT_SET"
	case CodeFrozen:
		return "FROZEN"
	case CodeClosed:
		return "CLOSED"
	case CodeAlreadyExists:
		return "ALREADY_EXISTS"
	case CodeIOFailure:
		return "IO_FAILURE"
	case CodeCorruptionDetected:
		return "CORRUPTION_DETECTED"
	case CodeReplicationLogging:
		return "REPLICATION_LOGGING_FAILURE"
	default:
		return "INTERNAL"
	}
}

// Error is a structured error with a code and optional context.
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error carrying the same code, so the
// exported sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatus maps the code to an HTTP status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidArgument, CodeMarkNotSet:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnsupportedCapability:
		return http.StatusNotImplemented
	case CodeFrozen, CodeAlreadyExists:
		return http.StatusConflict
	case CodeClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GRPCStatus converts the error to a gRPC status.
func (e *Error) GRPCStatus() *status.Status {
	var c codes.Code
	switch e.Code {
	case CodeOK:
		c = codes.OK
	case CodeInvalidArgument, CodeMarkNotSet:
		c = codes.InvalidArgument
	case CodeNotFound:
		c = codes.NotFound
	case CodeUnsupportedCapability:
		c = codes.Unimplemented
	case CodeFrozen:
		c = codes.FailedPrecondition
	case CodeAlreadyExists:
		c = codes.AlreadyExists
	case CodeClosed:
		c = codes.Unavailable
	case CodeCorruptionDetected:
		c = codes.DataLoss
	default:
		c = codes.Internal
	}
	return status.New(c, e.Error())
}

// New creates a new Error
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrInvalidArgument       = &Error{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrNotFound              = &Error{Code: CodeNotFound, Message: "not found"}
	ErrUnsupportedCapability = &Error{Code: CodeUnsupportedCapability, Message: "unsupported capability"}
	ErrMarkNotSet            = &Error{Code: CodeMarkNotSet, Message: "mark not set"}
	ErrFrozen                = &Error{Code: CodeFrozen, Message: "queue is frozen"}
	ErrClosed                = &Error{Code: CodeClosed, Message: "closed"}
	ErrAlreadyExists         = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrIOFailure             = &Error{Code: CodeIOFailure, Message: "i/o failure"}
	ErrCorruption            = &Error{Code: CodeCorruptionDetected, Message: "corruption detected"}
	ErrReplicationLogging    = &Error{Code: CodeReplicationLogging, Message: "replication logging failure"}
)

// Convenience constructors

func InvalidArgument(message string) *Error {
	return New(CodeInvalidArgument, message, nil)
}

func NotFound(what, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s not found: %s", what, id), nil).WithDetail(what, id)
}

func UnsupportedCapability(capability string) *Error {
	return New(CodeUnsupportedCapability, capability+" not supported", nil).WithDetail("capability", capability)
}

func MarkNotSet() *Error {
	return New(CodeMarkNotSet, "reset called without mark", nil)
}

func AlreadyExists(what, id string) *Error {
	return New(CodeAlreadyExists, fmt.Sprintf("%s already exists: %s", what, id), nil).WithDetail(what, id)
}

func Frozen(what string) *Error {
	return New(CodeFrozen, what+" is frozen and read-only", nil)
}

func Closed(what string) *Error {
	return New(CodeClosed, what+" is closed", nil)
}

func IOFailure(message string, cause error) *Error {
	return New(CodeIOFailure, message, cause)
}

func CorruptionDetected(message string, cause error) *Error {
	return New(CodeCorruptionDetected, message, cause)
}

// ReplicationLoggingFailure reports a mutation that was applied but whose
// transaction record could not be appended.
func ReplicationLoggingFailure(op, objectID string, cause error) *Error {
	return New(CodeReplicationLogging, fmt.Sprintf("%s applied to %s but not logged", op, objectID), cause).
		WithDetail("op", op).
		WithDetail("object_id", objectID)
}

func Internal(message string, cause error) *Error {
	return New(CodeInternal, message, cause)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// As is errors.As re-exported so callers importing this package under the
// name errors keep access to it.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// Is is errors.Is re-exported.
func Is(err, target error) bool { return stderrors.Is(err, target) }

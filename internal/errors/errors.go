// Package errors provides unified error handling with a small, stable code taxonomy.
// Codes map onto gRPC status codes so sidecar failures round-trip cleanly.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code classifies an AppError.
type Code string

const (
	CodeUnknown     Code = "UNKNOWN"
	CodeInternal    Code = "INTERNAL"
	CodeValidation  Code = "VALIDATION"
	CodeDevice      Code = "DEVICE"
	CodeRateLimited Code = "RATE_LIMITED"
	CodeBackend     Code = "BACKEND"
	CodeUnavailable Code = "UNAVAILABLE"
	CodePersistence Code = "PERSISTENCE"
	CodeIO          Code = "IO"
	CodeConfig      Code = "CONFIG"
	CodeState       Code = "STATE"
)

// RateLimitMessage is surfaced once rate-limit retries are exhausted.
const RateLimitMessage = "Rate limit exceeded. Please try again later."

var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:     codes.Unknown,
	CodeInternal:    codes.Internal,
	CodeValidation:  codes.InvalidArgument,
	CodeDevice:      codes.Unavailable,
	CodeRateLimited: codes.ResourceExhausted,
	CodeBackend:     codes.Internal,
	CodeUnavailable: codes.Unavailable,
	CodePersistence: codes.Internal,
	CodeIO:          codes.Internal,
	CodeConfig:      codes.FailedPrecondition,
	CodeState:       codes.FailedPrecondition,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// GRPCStatus lets status.FromError recognize an AppError.
func (e *AppError) GRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Message)
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError converts a gRPC error into an AppError.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}
	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message(), Cause: err}
}

func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeValidation
	case codes.Unavailable, codes.DeadlineExceeded:
		return CodeUnavailable
	case codes.ResourceExhausted:
		return CodeRateLimited
	case codes.FailedPrecondition:
		return CodeConfig
	case codes.Internal:
		return CodeBackend
	default:
		return CodeUnknown
	}
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code anywhere in its chain.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeUnavailable, CodeRateLimited:
		return true
	default:
		return false
	}
}

// IsRateLimit reports whether err signals throttling by a backend.
// Plain errors are matched on their text, the way hosted LLM APIs report it.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if IsCode(err, CodeRateLimited) {
		return true
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

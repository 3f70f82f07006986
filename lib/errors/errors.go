// Package errors holds the sentinel errors shared by the netpool packages
// and classifies failures into codes for status output.
//
// Package-level errors wrap one of the base sentinels, so callers test the
// category with errors.Is. Classify turns any error into an *Error whose
// message names only the category, never a dial target.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Code categorizes a failure.
type Code string

// Failure categories
const (
	CodeInvalidInput Code = "invalid_input"
	CodeTimeout      Code = "timeout"
	CodeUnavailable  Code = "unavailable"
	CodeConnection   Code = "connection"
	CodeClosed       Code = "closed"
	CodeUnsupported  Code = "unsupported"
	CodeCancelled    Code = "cancelled"
	CodeInternal     Code = "internal"
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrClosed indicates a resource is closed.
	ErrClosed = errors.New("closed")

	// ErrConnection indicates a connection error.
	ErrConnection = errors.New("connection error")

	// ErrInternal indicates an internal error.
	ErrInternal = errors.New("internal error")

	// ErrUnsupported indicates the operation is not supported by the receiver.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrCancelled indicates an asynchronous operation was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrCircuitOpen indicates the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Pool errors
var (
	// ErrPoolClosed indicates the pool has been closed.
	ErrPoolClosed = fmt.Errorf("pool: %w", ErrClosed)

	// ErrUnsupportedOperation is returned by pools that only accept
	// releases through the borrowed channel's Close.
	ErrUnsupportedOperation = fmt.Errorf("pool: release must go through channel close: %w", ErrUnsupported)

	// ErrAcquireTimeout indicates no channel became available in time.
	ErrAcquireTimeout = fmt.Errorf("pool: acquire: %w", ErrTimeout)

	// ErrForeignChannel indicates a release of a channel the pool never handed out.
	ErrForeignChannel = fmt.Errorf("pool: channel not owned by this pool: %w", ErrInvalidInput)
)

// Channel errors
var (
	// ErrEventLoopStopped indicates a task was submitted to a stopped event loop.
	ErrEventLoopStopped = fmt.Errorf("channel: event loop: %w", ErrClosed)
)

// Transport errors
var (
	// ErrConnect indicates the raw connect attempt failed.
	ErrConnect = fmt.Errorf("transport: connect: %w", ErrConnection)

	// ErrNoTarget indicates no dial target was configured.
	ErrNoTarget = fmt.Errorf("transport: no target: %w", ErrInvalidInput)

	// ErrInvalidI2PTarget indicates an I2P target could not be parsed.
	ErrInvalidI2PTarget = fmt.Errorf("transport: invalid i2p destination: %w", ErrInvalidInput)
)

// Error is a classified failure. Message is safe to show outside the
// process; Err keeps the full error for logs.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// SafeMessage returns the category message without internal details.
func (e *Error) SafeMessage() string {
	return e.Message
}

// ConnectFailure wraps a dial error so that it matches ErrConnect while
// keeping the original cause reachable through errors.Is/As.
func ConnectFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrConnect, err)
}

// categories is checked in order; the first match wins. Cancellation and
// timeouts come first because they wrap whatever was in flight.
var categories = []struct {
	match error
	code  Code
	safe  error
}{
	{ErrCancelled, CodeCancelled, ErrCancelled},
	{context.Canceled, CodeCancelled, ErrCancelled},
	{ErrTimeout, CodeTimeout, ErrTimeout},
	{context.DeadlineExceeded, CodeTimeout, ErrTimeout},
	{os.ErrDeadlineExceeded, CodeTimeout, ErrTimeout},
	{ErrUnsupported, CodeUnsupported, ErrUnsupported},
	{ErrCircuitOpen, CodeUnavailable, ErrCircuitOpen},
	{ErrInvalidInput, CodeInvalidInput, ErrInvalidInput},
	{ErrConnection, CodeConnection, ErrConnection},
	{io.EOF, CodeConnection, ErrConnection},
	{io.ErrUnexpectedEOF, CodeConnection, ErrConnection},
	{ErrClosed, CodeClosed, ErrClosed},
}

// Classify maps err to its category. An existing *Error is returned
// as is. Errors matching no sentinel are CodeInternal. Classify(nil)
// is nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	for _, c := range categories {
		if errors.Is(err, c.match) {
			return &Error{Code: c.code, Message: c.safe.Error(), Err: err}
		}
	}
	return &Error{Code: CodeInternal, Message: ErrInternal.Error(), Err: err}
}

// CodeOf returns the category code of err, or "" for nil.
func CodeOf(err error) Code {
	if e := Classify(err); e != nil {
		return e.Code
	}
	return ""
}

// IsConnectFailure returns true if the error came from a failed connect.
func IsConnectFailure(err error) bool {
	return errors.Is(err, ErrConnect)
}

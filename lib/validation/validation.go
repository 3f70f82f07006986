// Package validation checks netpool configuration values. Validators
// return nil on success and a *Result naming the offending field
// otherwise, so a whole configuration can be checked in one pass with
// Errors.
package validation

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	apperrors "github.com/go-i2p/netpool/lib/errors"
)

// Sentinel errors. All of them match errors.ErrInvalidInput.
var (
	// ErrRequired indicates a required field is missing or empty.
	ErrRequired = fmt.Errorf("field is required: %w", apperrors.ErrInvalidInput)

	// ErrInvalidFormat indicates a value doesn't match the expected format.
	ErrInvalidFormat = fmt.Errorf("invalid format: %w", apperrors.ErrInvalidInput)

	// ErrOutOfRange indicates a numeric value is outside the allowed range.
	ErrOutOfRange = fmt.Errorf("value out of range: %w", apperrors.ErrInvalidInput)

	// ErrNotAllowed indicates a value is not one of the accepted choices.
	ErrNotAllowed = fmt.Errorf("value not allowed: %w", apperrors.ErrInvalidInput)
)

// Result is a validation failure for one field.
type Result struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (r *Result) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("%s: %s", r.Field, r.Message)
	}
	return r.Message
}

// Unwrap returns the underlying error for errors.Is() support.
func (r *Result) Unwrap() error {
	return r.Err
}

// NewResult creates a validation result.
func NewResult(field, message string, err error) *Result {
	return &Result{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// Required validates that a string is non-empty.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewResult(field, "is required", ErrRequired)
	}
	return nil
}

// IntRange validates that an integer is within the given range (inclusive).
func IntRange(field string, value, min, max int) error {
	if value < min || value > max {
		return NewResult(field, fmt.Sprintf("must be between %d and %d", min, max), ErrOutOfRange)
	}
	return nil
}

// Positive validates that an integer is positive (> 0).
func Positive(field string, value int) error {
	if value <= 0 {
		return NewResult(field, "must be positive", ErrOutOfRange)
	}
	return nil
}

// NonNegative validates that an integer is non-negative (>= 0).
func NonNegative(field string, value int) error {
	if value < 0 {
		return NewResult(field, "must be non-negative", ErrOutOfRange)
	}
	return nil
}

// NonNegativeFloat validates a rate or similar fractional setting.
func NonNegativeFloat(field string, value float64) error {
	if value < 0 {
		return NewResult(field, "must be non-negative", ErrOutOfRange)
	}
	return nil
}

// PositiveDuration validates that a duration is greater than zero.
func PositiveDuration(field string, value time.Duration) error {
	if value <= 0 {
		return NewResult(field, "must be positive", ErrOutOfRange)
	}
	return nil
}

// NonNegativeDuration validates a duration where zero means disabled.
func NonNegativeDuration(field string, value time.Duration) error {
	if value < 0 {
		return NewResult(field, "must not be negative", ErrOutOfRange)
	}
	return nil
}

// OneOf validates that value is one of allowed.
func OneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return NewResult(field, fmt.Sprintf("must be one of %s, got %q", strings.Join(allowed, ", "), value), ErrNotAllowed)
}

// HostPort validates a host:port address.
func HostPort(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}

	_, _, err := net.SplitHostPort(value)
	if err != nil {
		return NewResult(field, "must be in host:port format", ErrInvalidFormat)
	}

	return nil
}

// All runs multiple validation functions and returns the first error.
func All(validators ...func() error) error {
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// Errors collects multiple validation errors.
type Errors []error

// Add appends an error to the collection (nil errors are ignored).
func (e *Errors) Add(err error) {
	if err != nil {
		*e = append(*e, err)
	}
}

// HasErrors returns true if any errors were collected.
func (e Errors) HasErrors() bool {
	return len(e) > 0
}

// Err returns the collection as an error, or nil if it is empty.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// Error returns all errors as a single error message.
func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("multiple validation errors: ")
	for i, err := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e Errors) Unwrap() []error {
	return e
}

// First returns the first error, or nil if none.
func (e Errors) First() error {
	if len(e) == 0 {
		return nil
	}
	return e[0]
}


// IsValidationError reports whether err came from this package.
func IsValidationError(err error) bool {
	var r *Result
	return errors.As(err, &r)
}

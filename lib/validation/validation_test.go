package validation

import (
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "github.com/go-i2p/netpool/lib/errors"
)

func TestRequired(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   string
		wantErr bool
	}{
		{"valid string", "name", "test", false},
		{"empty string", "name", "", true},
		{"whitespace only", "name", "   ", true},
		{"tab only", "name", "\t", true},
		{"newline only", "name", "\n", true},
		{"valid with spaces", "name", " test ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Required(tt.field, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Required() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrRequired) {
				t.Errorf("Required() error should wrap ErrRequired")
			}
		})
	}
}

func TestIntRange(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		min     int
		max     int
		wantErr bool
	}{
		{"within range", 5, 1, 10, false},
		{"at min", 1, 1, 10, false},
		{"at max", 10, 1, 10, false},
		{"below min", 0, 1, 10, true},
		{"above max", 11, 1, 10, true},
		{"negative", -5, 0, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := IntRange("field", tt.value, tt.min, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("IntRange() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrOutOfRange) {
				t.Errorf("IntRange() error should wrap ErrOutOfRange")
			}
		})
	}
}

func TestPositive(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		wantErr bool
	}{
		{"positive", 1, false},
		{"large positive", 1000, false},
		{"zero", 0, true},
		{"negative", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Positive("field", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Positive() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNonNegative(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		wantErr bool
	}{
		{"positive", 1, false},
		{"zero", 0, false},
		{"negative", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NonNegative("field", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("NonNegative() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid localhost", "127.0.0.1:8080", false},
		{"valid hostname", "localhost:7656", false},
		{"valid ipv6", "[::1]:8080", false},
		{"empty", "", true},
		{"no port", "127.0.0.1", true},
		{"no host", ":8080", false}, // This is actually valid in Go
		{"invalid format", "not-a-hostport", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := HostPort("address", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("HostPort() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAll(t *testing.T) {
	t.Run("all pass", func(t *testing.T) {
		err := All(
			func() error { return nil },
			func() error { return nil },
		)
		if err != nil {
			t.Errorf("All() = %v, want nil", err)
		}
	})

	t.Run("first fails", func(t *testing.T) {
		expectedErr := errors.New("first error")
		err := All(
			func() error { return expectedErr },
			func() error { return nil },
		)
		if err != expectedErr {
			t.Errorf("All() = %v, want %v", err, expectedErr)
		}
	})

	t.Run("second fails", func(t *testing.T) {
		expectedErr := errors.New("second error")
		err := All(
			func() error { return nil },
			func() error { return expectedErr },
		)
		if err != expectedErr {
			t.Errorf("All() = %v, want %v", err, expectedErr)
		}
	})
}

func TestErrors(t *testing.T) {
	t.Run("empty collection", func(t *testing.T) {
		var errs Errors
		if errs.HasErrors() {
			t.Error("empty Errors should not HasErrors")
		}
		if errs.First() != nil {
			t.Error("empty Errors.First() should be nil")
		}
		if errs.Error() != "" {
			t.Error("empty Errors.Error() should be empty string")
		}
	})

	t.Run("add nil is ignored", func(t *testing.T) {
		var errs Errors
		errs.Add(nil)
		if errs.HasErrors() {
			t.Error("adding nil should not create error")
		}
	})

	t.Run("single error", func(t *testing.T) {
		var errs Errors
		e := errors.New("test error")
		errs.Add(e)

		if !errs.HasErrors() {
			t.Error("should HasErrors")
		}
		if errs.First() != e {
			t.Error("First() should return the error")
		}
		if errs.Error() != "test error" {
			t.Errorf("Error() = %q, want %q", errs.Error(), "test error")
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		var errs Errors
		errs.Add(errors.New("first"))
		errs.Add(errors.New("second"))

		if len(errs) != 2 {
			t.Errorf("len(errs) = %d, want 2", len(errs))
		}
		if !strings.Contains(errs.Error(), "first") || !strings.Contains(errs.Error(), "second") {
			t.Errorf("Error() should contain both errors: %s", errs.Error())
		}
	})
}

func TestResult(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		r := NewResult("name", "is required", ErrRequired)
		if r.Error() != "name: is required" {
			t.Errorf("Error() = %q, want %q", r.Error(), "name: is required")
		}
		if !errors.Is(r, ErrRequired) {
			t.Error("should wrap ErrRequired")
		}
	})

	t.Run("without field", func(t *testing.T) {
		r := NewResult("", "general error", ErrInvalidFormat)
		if r.Error() != "general error" {
			t.Errorf("Error() = %q, want %q", r.Error(), "general error")
		}
	})
}

func TestDurations(t *testing.T) {
	tests := []struct {
		name       string
		value      time.Duration
		wantPosErr bool
		wantNonNeg bool
	}{
		{"positive", time.Second, false, false},
		{"zero", 0, true, false},
		{"negative", -time.Second, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := PositiveDuration("timeout", tt.value); (err != nil) != tt.wantPosErr {
				t.Errorf("PositiveDuration() error = %v, wantErr %v", err, tt.wantPosErr)
			}
			if err := NonNegativeDuration("timeout", tt.value); (err != nil) != tt.wantNonNeg {
				t.Errorf("NonNegativeDuration() error = %v, wantErr %v", err, tt.wantNonNeg)
			}
		})
	}
}

func TestNonNegativeFloat(t *testing.T) {
	if err := NonNegativeFloat("rate", 0); err != nil {
		t.Errorf("zero should be valid, got %v", err)
	}
	if err := NonNegativeFloat("rate", 2.5); err != nil {
		t.Errorf("positive should be valid, got %v", err)
	}
	if err := NonNegativeFloat("rate", -0.1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("negative should be out of range, got %v", err)
	}
}

func TestOneOf(t *testing.T) {
	if err := OneOf("mode", "fixed", "fixed", "none"); err != nil {
		t.Errorf("allowed value rejected: %v", err)
	}

	err := OneOf("mode", "lifo", "fixed", "none")
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
	if !strings.Contains(err.Error(), "fixed, none") {
		t.Errorf("error should list the choices: %v", err)
	}
}

func TestSentinelsAreInvalidInput(t *testing.T) {
	for _, err := range []error{ErrRequired, ErrInvalidFormat, ErrOutOfRange, ErrNotAllowed} {
		if !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("%v should match ErrInvalidInput", err)
		}
	}
}

func TestErrorsUnwrap(t *testing.T) {
	var errs Errors
	if errs.Err() != nil {
		t.Error("empty collection should convert to a nil error")
	}

	errs.Add(Required("client.name", ""))
	errs.Add(Positive("pool.max_size", 0))

	err := errs.Err()
	if !errors.Is(err, ErrRequired) || !errors.Is(err, ErrOutOfRange) {
		t.Errorf("collection should match every collected sentinel: %v", err)
	}
	if !IsValidationError(err) {
		t.Error("collection should contain a *Result")
	}
	if IsValidationError(errors.New("other")) {
		t.Error("unrelated error reported as a validation error")
	}
}

package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestInvalidValueError_Is(t *testing.T) {
	err := fmt.Errorf("dispatch %q: %w", "inc", &InvalidValueError{Validator: "non-negative", Value: -1})

	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("errors.Is(%v, ErrInvalidValue) = false, want true", err)
	}

	var ive *InvalidValueError
	if !errors.As(err, &ive) {
		t.Fatalf("errors.As() = false, want true")
	}
	if ive.Validator != "non-negative" {
		t.Errorf("Validator = %q, want %q", ive.Validator, "non-negative")
	}
}

func TestInvalidValueError_Message(t *testing.T) {
	err := &InvalidValueError{Validator: "positive", Value: 0}
	msg := err.Error()

	for _, want := range []string{"invalid value", `"positive"`, "0"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

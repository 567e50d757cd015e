// Package errs defines the error kinds shared by the cellstore SDK and its
// internal transports.
//
// The root package re-exports every sentinel so callers never import this
// package directly. Internal packages (the HTTP server in particular) use it
// to classify errors returned by the store without importing the root
// package.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidValue is returned when a candidate value fails a validator.
	ErrInvalidValue = errors.New("invalid value")

	// ErrUnknownEvent is returned when dispatching an unregistered event.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrUnknownSubscription is returned when subscribing to or querying an
	// unregistered selector.
	ErrUnknownSubscription = errors.New("unknown subscription")

	// ErrInvalidArgs is returned when call arguments do not match the shape a
	// typed reducer or selector was registered with.
	ErrInvalidArgs = errors.New("invalid arguments")

	// ErrInvalidNotifiable is returned when a notifiable cannot be used as an
	// identity key (nil or not comparable).
	ErrInvalidNotifiable = errors.New("invalid notifiable")
)

// InvalidValueError reports a value rejected by a validator.
type InvalidValueError struct {
	// Validator is the key of the first validator that returned false.
	Validator string

	// Value is the rejected candidate.
	Value any
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: rejected by validator %q: %v", ErrInvalidValue, e.Validator, e.Value)
}

// Unwrap lets errors.Is match ErrInvalidValue.
func (e *InvalidValueError) Unwrap() error {
	return ErrInvalidValue
}

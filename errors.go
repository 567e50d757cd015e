package cellstore

import "github.com/jpalmerr/cellstore/internal/errs"

// Error kinds returned by [Cell] and [Store]. Match them with errors.Is.
var (
	// ErrInvalidValue: a candidate state failed a validator. The state is
	// left unchanged. The concrete error is an [InvalidValueError].
	ErrInvalidValue = errs.ErrInvalidValue

	// ErrUnknownEvent: [Store.Dispatch] named an unregistered event.
	ErrUnknownEvent = errs.ErrUnknownEvent

	// ErrUnknownSubscription: [Store.Subscribe] or [Store.Query] named an
	// unregistered selector.
	ErrUnknownSubscription = errs.ErrUnknownSubscription

	// ErrInvalidArgs: arguments did not match a typed reducer or selector.
	ErrInvalidArgs = errs.ErrInvalidArgs

	// ErrInvalidNotifiable: the notifiable passed to [Store.Subscribe], or
	// the observer passed to [ReactiveCell.Observe], is nil or cannot be
	// compared by identity.
	ErrInvalidNotifiable = errs.ErrInvalidNotifiable
)

// InvalidValueError names the validator that rejected a value and the value
// itself. Retrieve it with errors.As.
type InvalidValueError = errs.InvalidValueError

package payment

import "errors"

var (
	// ErrNoHold is returned when capturing an assignment that was never authorized.
	ErrNoHold = errors.New("no payment hold")
	// ErrHoldConflict is returned when an operation contradicts the hold's state.
	ErrHoldConflict = errors.New("payment hold conflict")
	// ErrInvalidAmount is returned for non-positive authorizations.
	ErrInvalidAmount = errors.New("invalid payment amount")
)

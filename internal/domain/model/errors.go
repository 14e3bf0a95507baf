package model

import "errors"

// Sentinel kinds shared by the domain and its adapters.
var (
	ErrValidation                 = errors.New("invalid input")
	ErrExternalServiceUnavailable = errors.New("external service unavailable")
)

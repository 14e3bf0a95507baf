package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrStaleWrite       = errors.New("stale write")
	ErrActiveAssignment = errors.New("game already has an active assignment")
)

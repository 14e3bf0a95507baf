package reliability

import "errors"

var (
	// ErrUnsupportedOutcome is returned for statuses that do not affect reliability.
	ErrUnsupportedOutcome = errors.New("outcome does not affect reliability")
	// ErrRefereeMismatch is returned when the outcome belongs to another referee.
	ErrRefereeMismatch = errors.New("outcome referee mismatch")
)

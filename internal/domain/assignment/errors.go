package assignment

import (
	"errors"
	"fmt"

	"github.com/okian/refmatch/internal/domain/model"
)

// ErrInvalidTransition is returned for transitions outside the table or
// violating a timing rule.
var ErrInvalidTransition = errors.New("invalid transition")

// TransitionError details a refused transition.
type TransitionError struct {
	Op     string
	From   model.AssignmentStatus
	To     model.AssignmentStatus
	Reason string
}

func (e *TransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "none"
	}
	return fmt.Sprintf("%s: %s -> %s: %s", e.Op, from, e.To, e.Reason)
}

// Unwrap makes errors.Is(err, ErrInvalidTransition) hold.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func invalid(op string, from, to model.AssignmentStatus, reason string) error {
	return &TransitionError{Op: op, From: from, To: to, Reason: reason}
}

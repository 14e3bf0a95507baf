package eligibility

import "errors"

var (
	// ErrNoEligibleReferees is a soft failure; callers escalate instead of aborting.
	ErrNoEligibleReferees = errors.New("no eligible referees")
	// ErrUnknownLevel is returned when the game's level is not in the seniority order.
	ErrUnknownLevel = errors.New("unknown level")
)

package seed

import "errors"

var (
	// ErrInvalidConfig reports an unusable seeding configuration.
	ErrInvalidConfig = errors.New("invalid seed config")
	// ErrUnhealthy reports that the service did not pass its liveness check.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrUnexpectedStatus reports a response status the client did not expect.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrVerification reports an offer that breaks a matching rule.
	ErrVerification = errors.New("verification failed")
)

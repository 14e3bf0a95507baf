package assignment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Option configures a Machine.
type Option func(*Machine)

// WithConfirmationWindows sets how long referees have to respond to normal
// and emergency offers. Deadlines are still capped at kickoff.
func WithConfirmationWindows(normal, emergency time.Duration) Option {
	return func(m *Machine) {
		if normal > 0 {
			m.window = normal
		}
		if emergency > 0 {
			m.emergencyWindow = emergency
		}
	}
}

// WithPlatformFee sets the share of the fee kept by the platform, in [0,1).
func WithPlatformFee(share float64) Option {
	return func(m *Machine) {
		if share >= 0 && share < 1 {
			m.platformFee = decimal.NewFromFloat(share)
		}
	}
}

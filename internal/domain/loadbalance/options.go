package loadbalance

import "time"

// Option configures a Balancer.
type Option func(*Balancer)

// WithCap sets the assignment cap per period. Zero or less disables
// balancing.
func WithCap(n int) Option {
	return func(b *Balancer) {
		b.cap = n
	}
}

// WithPeriod sets the half-width of the counting window around a game.
func WithPeriod(d time.Duration) Option {
	return func(b *Balancer) {
		if d > 0 {
			b.period = d
		}
	}
}

// WithPenalties sets the penalty reached just below the cap and the factor
// applied at the cap. Both must lie in (0,1).
func WithPenalties(nearCap, atCap float64) Option {
	return func(b *Balancer) {
		if nearCap > 0 && nearCap < 1 && atCap > 0 && atCap < 1 {
			b.nearCapPenalty = nearCap
			b.atCapFactor = atCap
		}
	}
}

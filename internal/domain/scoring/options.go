package scoring

import "time"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithNormalWeights sets the normal-mode weights.
func WithNormalWeights(w Weights) Option {
	return func(e *Engine) {
		e.normal = w
	}
}

// WithEmergencyWeights sets the emergency-mode weights.
func WithEmergencyWeights(w Weights) Option {
	return func(e *Engine) {
		e.emergency = w
	}
}

// WithExperienceCurve replaces the experience curve.
func WithExperienceCurve(c ExperienceCurve) Option {
	return func(e *Engine) {
		e.curve = c
	}
}

// WithEmergencyWindow sets the lead time below which a game is an emergency.
func WithEmergencyWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.emergencyWindow = d
		}
	}
}

// WithEscalateAfter treats a game as an emergency once it has this many
// failed offers. Zero disables escalation by attempts.
func WithEscalateAfter(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.escalateAfter = n
		}
	}
}

// WithSurge sets the multiplier cap and the per-failed-offer step.
func WithSurge(limit, step float64) Option {
	return func(e *Engine) {
		if limit >= 1 && step >= 0 {
			e.surgeCap = limit
			e.surgeStep = step
		}
	}
}

// WithSlackHorizon sets the free time at which emergency slack saturates.
func WithSlackHorizon(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.slackHorizon = d
		}
	}
}

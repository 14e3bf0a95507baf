// Package loadbalance discourages concentrating assignments on a few
// referees. It only re-ranks candidates and never removes one.
package loadbalance

import (
	"math"
	"time"

	"github.com/okian/refmatch/internal/domain/model"
)

// Balancer applies a multiplicative load penalty.
type Balancer struct {
	cap            int
	period         time.Duration
	nearCapPenalty float64
	atCapFactor    float64
}

// New creates a Balancer with a weekly cap of 5.
func New(opts ...Option) *Balancer {
	b := &Balancer{
		cap:            5,
		period:         7 * 24 * time.Hour,
		nearCapPenalty: 0.30,
		atCapFactor:    0.05,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Period returns the window [start-period, start+period) whose active and
// completed assignments count toward a referee's load for a game at start.
func (b *Balancer) Period(start time.Time) model.Window {
	return model.Window{Start: start.Add(-b.period), End: start.Add(b.period)}
}

// Factor returns the multiplier for a referee carrying load assignments in
// the period. It is always in (0,1].
func (b *Balancer) Factor(load int) float64 {
	if b.cap <= 0 || load <= 0 {
		return 1
	}
	if load < b.cap {
		return 1 - b.nearCapPenalty*float64(load)/float64(b.cap)
	}
	return b.atCapFactor / float64(1+load-b.cap)
}

// Adjust applies the load factor to a breakdown.
func (b *Balancer) Adjust(s model.ScoreBreakdown, load int) model.ScoreBreakdown {
	s.LoadFactor = b.Factor(load)
	s.Final = math.Max(0, s.Raw*s.LoadFactor)
	return s
}

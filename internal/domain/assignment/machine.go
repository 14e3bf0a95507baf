// Package assignment owns the lifecycle of a single offer:
//
//	offered -> confirmed | rejected | expired
//	confirmed -> completed | no_show | cancelled
//	offered -> cancelled
//
// Every operation returns a new Assignment plus the intents the caller must
// enqueue after committing it. Inputs are never mutated.
package assignment

import (
	"fmt"
	"strconv"
	"time"

	"github.com/okian/refmatch/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Close reasons recorded on terminal assignments.
const (
	ReasonDeadlinePassed = "deadline passed"
	ReasonDeclined       = "declined by referee"
	ReasonGameCancelled  = "game cancelled"
	ReasonSuperseded     = "superseded"
	ReasonNoShow         = "referee did not show"
)

var transitions = map[model.AssignmentStatus][]model.AssignmentStatus{
	model.AssignmentOffered: {
		model.AssignmentConfirmed,
		model.AssignmentRejected,
		model.AssignmentExpired,
		model.AssignmentCancelled,
	},
	model.AssignmentConfirmed: {
		model.AssignmentCompleted,
		model.AssignmentNoShow,
		model.AssignmentCancelled,
	},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to model.AssignmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OfferRequest describes the offer to create.
type OfferRequest struct {
	ID        string
	Game      model.Game
	RefereeID string
	// Existing holds the game's assignments; any active one blocks the offer.
	Existing   []model.Assignment
	Breakdown  model.ScoreBreakdown
	Fee        decimal.Decimal
	Multiplier decimal.Decimal
	Emergency  bool
	Fallback   bool
	Forced     bool
}

// Machine applies lifecycle transitions.
type Machine struct {
	window          time.Duration
	emergencyWindow time.Duration
	platformFee     decimal.Decimal
}

// New creates a Machine with a 24h confirmation window (2h for
// emergencies) and a 15% platform fee.
func New(opts ...Option) *Machine {
	m := &Machine{
		window:          24 * time.Hour,
		emergencyWindow: 2 * time.Hour,
		platformFee:     decimal.NewFromFloat(0.15),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Offer creates an offered assignment for req.Game.
func (m *Machine) Offer(req OfferRequest, now time.Time) (model.Assignment, []model.Intent, error) {
	g := req.Game
	if g.Status != model.GamePending && g.Status != "" {
		return model.Assignment{}, nil, invalid("offer", "", model.AssignmentOffered, "game is "+string(g.Status))
	}
	if g.Started(now) {
		return model.Assignment{}, nil, invalid("offer", "", model.AssignmentOffered, "game already started")
	}
	for _, a := range req.Existing {
		if a.GameID == g.ID && a.Status.Active() {
			return model.Assignment{}, nil, invalid("offer", a.Status, model.AssignmentOffered, "game already has assignment "+a.ID)
		}
	}
	if req.ID == "" || req.RefereeID == "" {
		return model.Assignment{}, nil, fmt.Errorf("%w: offer needs an id and a referee", model.ErrValidation)
	}
	if g.Excludes(req.RefereeID) && !req.Forced {
		return model.Assignment{}, nil, invalid("offer", "", model.AssignmentOffered, "referee excluded from game")
	}

	window := m.window
	if req.Emergency {
		window = m.emergencyWindow
	}
	deadline := now.Add(window)
	if deadline.After(g.StartsAt) {
		deadline = g.StartsAt
	}

	mult := req.Multiplier
	if mult.IsZero() {
		mult = decimal.NewFromInt(1)
	}
	a := model.Assignment{
		ID:              req.ID,
		GameID:          g.ID,
		RefereeID:       req.RefereeID,
		Status:          model.AssignmentOffered,
		Emergency:       req.Emergency,
		Forced:          req.Forced,
		Fallback:        req.Fallback,
		OfferedAt:       now,
		Deadline:        deadline,
		Fee:             req.Fee,
		SurgeMultiplier: mult,
		Payout:          m.payout(req.Fee),
		Breakdown:       req.Breakdown,
	}
	return a, []model.Intent{
		m.notify(model.RoleReferee, a.RefereeID, model.MessageOffer, a, g),
	}, nil
}

// Confirm accepts an offer before its deadline.
func (m *Machine) Confirm(a model.Assignment, g model.Game, now time.Time) (model.Assignment, []model.Intent, error) {
	if err := check("confirm", a, model.AssignmentConfirmed); err != nil {
		return a, nil, err
	}
	if !now.Before(a.Deadline) {
		return a, nil, invalid("confirm", a.Status, model.AssignmentConfirmed, ReasonDeadlinePassed)
	}
	out := a
	out.Status = model.AssignmentConfirmed
	out.RespondedAt = now
	return out, []model.Intent{
		m.notify(model.RoleReferee, out.RefereeID, model.MessageConfirmed, out, g),
		m.notify(model.RoleOrganizer, g.OrganizerID, model.MessageConfirmed, out, g),
		model.Payment(model.IntentAuthorize, out, out.Fee),
	}, nil
}

// Reject records the referee declining an offer.
func (m *Machine) Reject(a model.Assignment, g model.Game, now time.Time) (model.Assignment, []model.Intent, error) {
	if err := check("reject", a, model.AssignmentRejected); err != nil {
		return a, nil, err
	}
	out := closed(a, model.AssignmentRejected, ReasonDeclined, now)
	out.RespondedAt = now
	return out, []model.Intent{
		m.notify(model.RoleOrganizer, g.OrganizerID, model.MessageRejected, out, g),
	}, nil
}

// Expire closes an offer whose deadline has passed.
func (m *Machine) Expire(a model.Assignment, g model.Game, now time.Time) (model.Assignment, []model.Intent, error) {
	if err := check("expire", a, model.AssignmentExpired); err != nil {
		return a, nil, err
	}
	if now.Before(a.Deadline) {
		return a, nil, invalid("expire", a.Status, model.AssignmentExpired, "deadline not reached")
	}
	out := closed(a, model.AssignmentExpired, ReasonDeadlinePassed, now)
	return out, []model.Intent{
		m.notify(model.RoleReferee, out.RefereeID, model.MessageExpired, out, g),
		m.notify(model.RoleOrganizer, g.OrganizerID, model.MessageExpired, out, g),
	}, nil
}

// MarkCompleted closes a confirmed assignment once the game has ended.
func (m *Machine) MarkCompleted(a model.Assignment, g model.Game, now time.Time) (model.Assignment, []model.Intent, error) {
	if err := check("complete", a, model.AssignmentCompleted); err != nil {
		return a, nil, err
	}
	if now.Before(g.EndsAt()) {
		return a, nil, invalid("complete", a.Status, model.AssignmentCompleted, "game has not ended")
	}
	out := closed(a, model.AssignmentCompleted, "", now)
	out.Payout = m.payout(out.Fee)

	capture := model.Payment(model.IntentCapture, out, out.Fee)
	capture.Payload = map[string]string{"payout": out.Payout.StringFixed(2)}
	done := m.notify(model.RoleReferee, out.RefereeID, model.MessageCompleted, out, g)
	done.Amount = out.Payout
	return out, []model.Intent{
		capture,
		done,
		m.notify(model.RoleOrganizer, g.OrganizerID, model.MessageReviewRequest, out, g),
	}, nil
}

// MarkNoShow closes a confirmed assignment whose referee did not appear.
// Payment is withheld.
func (m *Machine) MarkNoShow(a model.Assignment, g model.Game, now time.Time) (model.Assignment, []model.Intent, error) {
	if err := check("no_show", a, model.AssignmentNoShow); err != nil {
		return a, nil, err
	}
	out := closed(a, model.AssignmentNoShow, ReasonNoShow, now)
	out.Payout = decimal.Zero
	return out, []model.Intent{
		model.Payment(model.IntentVoid, out, out.Fee),
		m.notify(model.RoleAdmin, "", model.MessageNoShow, out, g),
		m.notify(model.RoleOrganizer, g.OrganizerID, model.MessageNoShow, out, g),
	}, nil
}

// Cancel releases the referee from an offered or confirmed assignment.
// A confirmed assignment also voids its payment authorization.
func (m *Machine) Cancel(a model.Assignment, g model.Game, reason string, now time.Time) (model.Assignment, []model.Intent, error) {
	if err := check("cancel", a, model.AssignmentCancelled); err != nil {
		return a, nil, err
	}
	if reason == "" {
		reason = ReasonGameCancelled
	}
	out := closed(a, model.AssignmentCancelled, reason, now)
	out.Payout = decimal.Zero
	intents := []model.Intent{
		m.notify(model.RoleReferee, out.RefereeID, model.MessageCancelled, out, g),
	}
	if a.Status == model.AssignmentConfirmed {
		intents = append(intents, model.Payment(model.IntentVoid, out, out.Fee))
	}
	return out, intents, nil
}

// Remind flags an offer as reminded and emits a single reminder. It is not
// a status transition.
func (m *Machine) Remind(a model.Assignment, g model.Game, now time.Time) (model.Assignment, []model.Intent, error) {
	if a.Status != model.AssignmentOffered || a.Reminded || !now.Before(a.Deadline) {
		return a, nil, invalid("remind", a.Status, a.Status, "offer is not awaiting a reminder")
	}
	out := a
	out.Reminded = true
	return out, []model.Intent{
		m.notify(model.RoleReferee, out.RefereeID, model.MessageReminder, out, g),
	}, nil
}

func (m *Machine) payout(fee decimal.Decimal) decimal.Decimal {
	return fee.Sub(fee.Mul(m.platformFee)).Round(2)
}

func (m *Machine) notify(role model.Role, id string, msg model.Message, a model.Assignment, g model.Game) model.Intent {
	in := model.Notify(model.Recipient{Role: role, ID: id}, msg, a)
	in.Payload = map[string]string{
		"referee_id": a.RefereeID,
		"sport":      string(g.Sport),
		"level":      string(g.Level),
		"starts_at":  g.StartsAt.UTC().Format(time.RFC3339),
		"venue":      g.Venue,
		"fee":        a.Fee.StringFixed(2),
		"deadline":   a.Deadline.UTC().Format(time.RFC3339),
		"emergency":  strconv.FormatBool(a.Emergency),
	}
	if a.Reason != "" {
		in.Payload["reason"] = a.Reason
	}
	return in
}

func check(op string, a model.Assignment, to model.AssignmentStatus) error {
	if !CanTransition(a.Status, to) {
		return invalid(op, a.Status, to, "not allowed from "+string(a.Status))
	}
	return nil
}

func closed(a model.Assignment, to model.AssignmentStatus, reason string, now time.Time) model.Assignment {
	a.Status = to
	a.ClosedAt = now
	if reason != "" {
		a.Reason = reason
	}
	return a
}

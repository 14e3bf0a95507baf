// Package payment executes payment intents. Every operation is idempotent
// per assignment so redelivered intents are harmless.
package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/refmatch/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Gateway authorizes, captures and voids the fee held for an assignment.
type Gateway interface {
	Authorize(ctx context.Context, assignmentID string, amount decimal.Decimal) error
	Capture(ctx context.Context, assignmentID string) error
	Void(ctx context.Context, assignmentID string) error
}

// HoldStatus is the state of a held fee.
type HoldStatus string

// Hold statuses.
const (
	HoldAuthorized HoldStatus = "authorized"
	HoldCaptured   HoldStatus = "captured"
	HoldVoided     HoldStatus = "voided"
)

// Hold is the ledger entry for one assignment.
type Hold struct {
	AssignmentID string          `json:"assignment_id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       HoldStatus      `json:"status"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Ledger is an in-memory Gateway. It records holds instead of moving money
// and is what the service runs with when no processor is configured.
type Ledger struct {
	mu    sync.Mutex
	holds map[string]Hold
	clock model.Clock
}

// NewLedger creates an empty ledger.
func NewLedger(clock model.Clock) *Ledger {
	if clock == nil {
		clock = model.SystemClock
	}
	return &Ledger{holds: make(map[string]Hold), clock: clock}
}

// Authorize implements Gateway. Re-authorizing the same amount is a no-op.
func (l *Ledger) Authorize(_ context.Context, assignmentID string, amount decimal.Decimal) error {
	if assignmentID == "" {
		return fmt.Errorf("%w: missing assignment id", model.ErrValidation)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: authorize %s: amount must be positive", ErrInvalidAmount, assignmentID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.holds[assignmentID]; ok {
		if h.Status == HoldAuthorized && h.Amount.Equal(amount) {
			return nil
		}
		return fmt.Errorf("%w: authorize %s: hold is %s for %s", ErrHoldConflict, assignmentID, h.Status, h.Amount)
	}
	l.holds[assignmentID] = Hold{
		AssignmentID: assignmentID,
		Amount:       amount,
		Status:       HoldAuthorized,
		UpdatedAt:    l.clock.Now(),
	}
	return nil
}

// Capture implements Gateway. Capturing twice is a no-op.
func (l *Ledger) Capture(_ context.Context, assignmentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holds[assignmentID]
	if !ok {
		return fmt.Errorf("%w: capture %s", ErrNoHold, assignmentID)
	}
	switch h.Status {
	case HoldCaptured:
		return nil
	case HoldVoided:
		return fmt.Errorf("%w: capture %s: hold is voided", ErrHoldConflict, assignmentID)
	}
	h.Status = HoldCaptured
	h.UpdatedAt = l.clock.Now()
	l.holds[assignmentID] = h
	return nil
}

// Void implements Gateway. Voiding an unknown or voided hold is a no-op.
func (l *Ledger) Void(_ context.Context, assignmentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holds[assignmentID]
	if !ok {
		l.holds[assignmentID] = Hold{AssignmentID: assignmentID, Status: HoldVoided, UpdatedAt: l.clock.Now()}
		return nil
	}
	switch h.Status {
	case HoldVoided:
		return nil
	case HoldCaptured:
		return fmt.Errorf("%w: void %s: hold is captured", ErrHoldConflict, assignmentID)
	}
	h.Status = HoldVoided
	h.UpdatedAt = l.clock.Now()
	l.holds[assignmentID] = h
	return nil
}

// Get returns the hold for assignmentID.
func (l *Ledger) Get(assignmentID string) (Hold, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holds[assignmentID]
	return h, ok
}

// Totals sums held amounts by status.
func (l *Ledger) Totals() map[HoldStatus]decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := map[HoldStatus]decimal.Decimal{
		HoldAuthorized: decimal.Zero,
		HoldCaptured:   decimal.Zero,
		HoldVoided:     decimal.Zero,
	}
	for _, h := range l.holds {
		out[h.Status] = out[h.Status].Add(h.Amount)
	}
	return out
}

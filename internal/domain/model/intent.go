package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntentKind selects the collaborator that executes an intent.
type IntentKind string

// Intent kinds.
const (
	IntentNotify    IntentKind = "notify"
	IntentAuthorize IntentKind = "payment_authorize"
	IntentCapture   IntentKind = "payment_capture"
	IntentVoid      IntentKind = "payment_void"
)

// Message names a notification template.
type Message string

// Notification messages.
const (
	MessageOffer         Message = "offer"
	MessageReminder      Message = "reminder"
	MessageConfirmed     Message = "confirmed"
	MessageRejected      Message = "rejected"
	MessageExpired       Message = "expired"
	MessageCancelled     Message = "cancelled"
	MessageCompleted     Message = "completed"
	MessageNoShow        Message = "no_show"
	MessageReviewRequest Message = "review_request"
	MessageEscalation    Message = "escalation"
)

// Role is the kind of party a notification targets.
type Role string

// Recipient roles.
const (
	RoleReferee   Role = "referee"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Recipient addresses a notification.
type Recipient struct {
	Role Role   `json:"role"`
	ID   string `json:"id"`
}

// Intent is an outbound side effect decided by a transition and executed
// after commit.
type Intent struct {
	ID           string            `json:"id"`
	Kind         IntentKind        `json:"kind"`
	Message      Message           `json:"message,omitempty"`
	Recipient    Recipient         `json:"recipient"`
	AssignmentID string            `json:"assignment_id,omitempty"`
	GameID       string            `json:"game_id"`
	Amount       decimal.Decimal   `json:"amount"`
	Payload      map[string]string `json:"payload,omitempty"`
	Attempt      int               `json:"attempt"`
	CreatedAt    time.Time         `json:"created_at"`
}

// DedupeKey lets receivers drop redelivered intents.
func (i Intent) DedupeKey() string {
	subject := i.AssignmentID
	if subject == "" {
		subject = i.GameID
	}
	tag := string(i.Kind)
	if i.Kind == IntentNotify {
		tag = string(i.Message) + ":" + string(i.Recipient.Role)
	}
	return subject + ":" + tag
}

// Notify builds a notification intent about a.
func Notify(to Recipient, msg Message, a Assignment) Intent {
	return Intent{
		Kind:         IntentNotify,
		Message:      msg,
		Recipient:    to,
		AssignmentID: a.ID,
		GameID:       a.GameID,
		Amount:       a.Fee,
	}
}

// Payment builds a payment intent about a.
func Payment(kind IntentKind, a Assignment, amount decimal.Decimal) Intent {
	return Intent{
		Kind:         kind,
		AssignmentID: a.ID,
		GameID:       a.GameID,
		Amount:       amount,
	}
}

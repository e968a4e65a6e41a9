// Package models defines the persisted device, terminal counter and payment session rows.
package models

import (
	"errors"
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a payment session.
type SessionStatus string

// Session lifecycle states.
const (
	// SessionPending is the initial state; only the newest pending session of a terminal is approvable.
	SessionPending SessionStatus = "pending"
	// SessionPaid is terminal and reached only through approval.
	SessionPaid SessionStatus = "paid"
	// SessionCanceled is terminal and reached by cancel or by a sibling's approval.
	SessionCanceled SessionStatus = "canceled"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid session status transition")

// Terminal reports whether s admits no further change.
func (s SessionStatus) Terminal() bool {
	return s == SessionPaid || s == SessionCanceled
}

// Transition validates a move from s to next and returns the resulting status.
// changed is false when the move is an accepted no-op: canceling a session that
// is already canceled or paid leaves it where it is.
func (s SessionStatus) Transition(next SessionStatus) (result SessionStatus, changed bool, err error) {
	switch {
	case s == SessionPending && next == SessionPaid:
		return SessionPaid, true, nil
	case s == SessionPending && next == SessionCanceled:
		return SessionCanceled, true, nil
	case s.Terminal() && next == SessionCanceled:
		return s, false, nil
	default:
		return s, false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
}

// PaymentSession is a single payment intent for a terminal.
type PaymentSession struct {
	ID string `gorm:"type:varchar(36);primaryKey" json:"id"` // UUIDv7 identifier.

	TerminalID string `gorm:"column:terminal_id;type:text;not null;index:idx_payment_sessions_terminal_status_created,priority:1" json:"terminalId"` // Owning terminal.

	Amount   int64  `gorm:"not null;default:0" json:"amount"`   // Amount in minor units.
	Currency string `gorm:"type:text;not null" json:"currency"` // ISO currency code.

	Status     SessionStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_payment_sessions_terminal_status_created,priority:2" json:"status"` // Lifecycle state.
	ResolvedBy string        `gorm:"type:varchar(16);not null;default:''" json:"resolvedBy,omitempty"`                                                        // Caller role that settled the session.

	CreatedAt time.Time `gorm:"not null;index:idx_payment_sessions_terminal_status_created,priority:3" json:"createdAt"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"`                                                // Last update timestamp.
}

// TableName overrides the default table name.
func (PaymentSession) TableName() string {
	return "payment_sessions"
}

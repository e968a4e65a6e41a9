// Package sessions owns the payment session lifecycle: creation, approval of the
// newest pending session per terminal, and cancellation of stale siblings.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	dbutil "github.com/tapterm/paybroker/internal/db"
	"github.com/tapterm/paybroker/internal/models"
	"gorm.io/gorm"
)

const (
	// DefaultPendingLimit caps the operator's pending session manager.
	DefaultPendingLimit = 20
	// DefaultRecentLimit caps the recent sessions listing.
	DefaultRecentLimit = 50
	// MaxListLimit bounds every listing.
	MaxListLimit = 100
)

// CreateParams holds inputs for session creation.
type CreateParams struct {
	TerminalID string
	Amount     int64
	Currency   string
}

// Service enforces the session lifecycle against the database.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	newID func() (string, error)
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the session id source.
func WithIDGenerator(newID func() (string, error)) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService constructs a Service.
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db: db,
		now: func() time.Time {
			return time.Now().UTC()
		},
		newID: newSessionID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newSessionID returns a time-ordered UUIDv7 so ids sort with creation order.
func newSessionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Create inserts a new pending session. Existing pending sessions for the
// terminal are left untouched; several may coexist until one is approved.
func (s *Service) Create(ctx context.Context, role Role, params CreateParams) (*models.PaymentSession, error) {
	if !role.CanCreate() {
		return nil, fmt.Errorf("%w: %s cannot create sessions", ErrForbidden, role)
	}
	terminalID := strings.TrimSpace(params.TerminalID)
	if terminalID == "" {
		return nil, fmt.Errorf("%w: terminalId required", ErrInvalidInput)
	}
	currency := strings.TrimSpace(params.Currency)
	if currency == "" {
		return nil, fmt.Errorf("%w: currency required", ErrInvalidInput)
	}

	id, errID := s.newID()
	if errID != nil {
		return nil, fmt.Errorf("sessions: generate id: %w", errID)
	}
	now := s.now()
	row := models.PaymentSession{
		ID:         id,
		TerminalID: terminalID,
		Amount:     params.Amount,
		Currency:   currency,
		Status:     models.SessionPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return nil, fmt.Errorf("sessions: create: %w", errCreate)
	}

	log.WithFields(log.Fields{
		"session_id":  row.ID,
		"terminal_id": row.TerminalID,
		"amount":      row.Amount,
		"currency":    row.Currency,
		"role":        role,
	}).Info("session created")
	return &row, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, sessionID string) (*models.PaymentSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId required", ErrInvalidInput)
	}
	return findByID(s.db.WithContext(ctx), sessionID)
}

// Approve marks the session paid and cancels every other pending session of
// its terminal. Only the newest pending session of the terminal is approvable;
// any other target, including one that is no longer pending, yields ErrConflict.
// Both writes commit in one transaction.
func (s *Service) Approve(ctx context.Context, role Role, sessionID string) (*models.PaymentSession, error) {
	if !role.CanApprove() {
		return nil, fmt.Errorf("%w: %s cannot approve sessions", ErrForbidden, role)
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId required", ErrInvalidInput)
	}

	var approved *models.PaymentSession
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		target, errFind := findByID(tx, sessionID)
		if errFind != nil {
			return errFind
		}
		result, errApprove := s.approveInTx(tx, role, target)
		if errApprove != nil {
			return errApprove
		}
		approved = result
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return approved, nil
}

// ApproveNewestForTerminal approves whichever pending session is newest for
// the terminal, through the same path as Approve.
func (s *Service) ApproveNewestForTerminal(ctx context.Context, role Role, terminalID string) (*models.PaymentSession, error) {
	if !role.CanApprove() {
		return nil, fmt.Errorf("%w: %s cannot approve sessions", ErrForbidden, role)
	}
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return nil, fmt.Errorf("%w: terminalId required", ErrInvalidInput)
	}

	var approved *models.PaymentSession
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		newest, errNewest := newestPending(tx, terminalID)
		if errNewest != nil {
			return errNewest
		}
		result, errApprove := s.approveInTx(tx, role, newest)
		if errApprove != nil {
			return errApprove
		}
		approved = result
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return approved, nil
}

// approveInTx runs the newest-pending-wins check and both writes on tx.
func (s *Service) approveInTx(tx *gorm.DB, role Role, target *models.PaymentSession) (*models.PaymentSession, error) {
	pending, errPending := lockPending(tx, target.TerminalID)
	if errPending != nil {
		return nil, errPending
	}
	if len(pending) == 0 || pending[0].ID != target.ID {
		return nil, fmt.Errorf("%w: session %s (status %s) is not the newest pending session for terminal %s",
			ErrConflict, target.ID, target.Status, target.TerminalID)
	}
	next, _, errTransition := target.Status.Transition(models.SessionPaid)
	if errTransition != nil {
		return nil, fmt.Errorf("%w: %v", ErrConflict, errTransition)
	}

	now := s.now()
	res := tx.Model(&models.PaymentSession{}).
		Where("id = ? AND status = ?", target.ID, models.SessionPending).
		Updates(map[string]any{
			"status":      next,
			"resolved_by": string(role),
			"updated_at":  now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("sessions: mark paid: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, fmt.Errorf("%w: session %s changed concurrently", ErrConflict, target.ID)
	}

	canceled, errCancel := cancelPendingIDs(tx, role, pendingIDs(pending[1:]), now)
	if errCancel != nil {
		return nil, errCancel
	}

	target.Status = next
	target.ResolvedBy = string(role)
	target.UpdatedAt = now
	log.WithFields(log.Fields{
		"session_id":        target.ID,
		"terminal_id":       target.TerminalID,
		"role":              role,
		"siblings_canceled": canceled,
	}).Info("session approved")
	return target, nil
}

// Cancel moves a session to canceled. It is idempotent: a session that is
// already canceled or paid is returned unchanged, and a missing session is a
// successful no-op returning nil.
func (s *Service) Cancel(ctx context.Context, role Role, sessionID string) (*models.PaymentSession, error) {
	if !role.CanCancel() {
		return nil, fmt.Errorf("%w: %s cannot cancel sessions", ErrForbidden, role)
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId required", ErrInvalidInput)
	}

	var out *models.PaymentSession
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, errFind := findByID(dbutil.ForUpdate(tx), sessionID)
		if errFind != nil {
			if errors.Is(errFind, ErrNotFound) {
				return nil
			}
			return errFind
		}
		next, changed, errTransition := row.Status.Transition(models.SessionCanceled)
		if errTransition != nil {
			return errTransition
		}
		if !changed {
			out = row
			return nil
		}

		now := s.now()
		res := tx.Model(&models.PaymentSession{}).
			Where("id = ? AND status = ?", row.ID, models.SessionPending).
			Updates(map[string]any{
				"status":      next,
				"resolved_by": string(role),
				"updated_at":  now,
			})
		if res.Error != nil {
			return fmt.Errorf("sessions: cancel: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Settled by someone else between read and write; report what won.
			current, errReload := findByID(tx, row.ID)
			if errReload != nil {
				return errReload
			}
			out = current
			return nil
		}
		row.Status = next
		row.ResolvedBy = string(role)
		row.UpdatedAt = now
		out = row
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	if out == nil {
		log.WithField("session_id", sessionID).Debug("cancel of missing session ignored")
		return nil, nil
	}
	log.WithFields(log.Fields{"session_id": out.ID, "terminal_id": out.TerminalID, "status": out.Status, "role": role}).Info("session cancel processed")
	return out, nil
}

// CancelOlderPending cancels every pending session of the terminal except the
// newest one and returns how many were canceled. Without pending sessions it
// does nothing.
func (s *Service) CancelOlderPending(ctx context.Context, role Role, terminalID string) (int64, error) {
	if !role.CanCancel() {
		return 0, fmt.Errorf("%w: %s cannot cancel sessions", ErrForbidden, role)
	}
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return 0, fmt.Errorf("%w: terminalId required", ErrInvalidInput)
	}

	var canceled int64
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pending, errPending := lockPending(tx, terminalID)
		if errPending != nil {
			return errPending
		}
		if len(pending) < 2 {
			return nil
		}
		n, errCancel := cancelPendingIDs(tx, role, pendingIDs(pending[1:]), s.now())
		if errCancel != nil {
			return errCancel
		}
		canceled = n
		return nil
	})
	if errTx != nil {
		return 0, errTx
	}
	if canceled > 0 {
		log.WithFields(log.Fields{"terminal_id": terminalID, "canceled": canceled, "role": role}).Info("older pending sessions canceled")
	}
	return canceled, nil
}

// NewestPending returns the approvable session for a terminal.
func (s *Service) NewestPending(ctx context.Context, terminalID string) (*models.PaymentSession, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return nil, fmt.Errorf("%w: terminalId required", ErrInvalidInput)
	}
	return newestPending(s.db.WithContext(ctx), terminalID)
}

// ListPending returns pending sessions for a terminal, newest first.
func (s *Service) ListPending(ctx context.Context, terminalID string, limit int) ([]models.PaymentSession, error) {
	terminalID = strings.TrimSpace(terminalID)
	if terminalID == "" {
		return nil, fmt.Errorf("%w: terminalId required", ErrInvalidInput)
	}
	var rows []models.PaymentSession
	errFind := s.db.WithContext(ctx).
		Where("terminal_id = ? AND status = ?", terminalID, models.SessionPending).
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit, DefaultPendingLimit)).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("sessions: list pending: %w", errFind)
	}
	return rows, nil
}

// ListRecent returns the most recently created sessions across terminals.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]models.PaymentSession, error) {
	var rows []models.PaymentSession
	errFind := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(clampLimit(limit, DefaultRecentLimit)).
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("sessions: list recent: %w", errFind)
	}
	return rows, nil
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

func findByID(tx *gorm.DB, sessionID string) (*models.PaymentSession, error) {
	var row models.PaymentSession
	if errFind := tx.Where("id = ?", sessionID).Take(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		return nil, fmt.Errorf("sessions: load %s: %w", sessionID, errFind)
	}
	return &row, nil
}

func newestPending(tx *gorm.DB, terminalID string) (*models.PaymentSession, error) {
	var row models.PaymentSession
	errFind := tx.Where("terminal_id = ? AND status = ?", terminalID, models.SessionPending).
		Order("created_at DESC, id DESC").
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no pending session for terminal %s", ErrNotFound, terminalID)
		}
		return nil, fmt.Errorf("sessions: newest pending %s: %w", terminalID, errFind)
	}
	return &row, nil
}

// lockPending reads the terminal's pending sessions newest first, holding row
// locks on PostgreSQL until the transaction ends.
func lockPending(tx *gorm.DB, terminalID string) ([]models.PaymentSession, error) {
	var rows []models.PaymentSession
	errFind := dbutil.ForUpdate(tx).
		Where("terminal_id = ? AND status = ?", terminalID, models.SessionPending).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if errFind != nil {
		return nil, fmt.Errorf("sessions: lock pending %s: %w", terminalID, errFind)
	}
	return rows, nil
}

func cancelPendingIDs(tx *gorm.DB, role Role, ids []string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := tx.Model(&models.PaymentSession{}).
		Where("id IN ? AND status = ?", ids, models.SessionPending).
		Updates(map[string]any{
			"status":      models.SessionCanceled,
			"resolved_by": string(role),
			"updated_at":  now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("sessions: cancel pending: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func pendingIDs(rows []models.PaymentSession) []string {
	ids := make([]string, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].ID)
	}
	return ids
}

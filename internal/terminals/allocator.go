// Package terminals mints per-store terminal identifiers from a persistent counter.
package terminals

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tapterm/paybroker/internal/models"
	"gorm.io/gorm"
)

// ErrEmptyStoreCode is returned when no store code is supplied.
var ErrEmptyStoreCode = errors.New("terminals: empty store code")

// Allocator hands out terminal identifiers backed by the terminal_sequences table.
type Allocator struct {
	db     *gorm.DB
	prefix string
	pad    int
}

// NewAllocator constructs an Allocator with the configured prefix and pad width.
func NewAllocator(db *gorm.DB, prefix string, pad int) *Allocator {
	if pad < 1 {
		pad = 1
	}
	return &Allocator{db: db, prefix: prefix, pad: pad}
}

// NormalizeStoreCode trims and upper-cases a store code.
func NormalizeStoreCode(storeCode string) string {
	return strings.ToUpper(strings.TrimSpace(storeCode))
}

// FormatTerminalID renders "{store}-{prefix}{seq}" with seq left-padded by zeros.
func FormatTerminalID(storeCode, prefix string, pad int, seq int64) string {
	n := strconv.FormatInt(seq, 10)
	if missing := pad - len(n); missing > 0 {
		n = strings.Repeat("0", missing) + n
	}
	return storeCode + "-" + prefix + n
}

// Allocate advances the store counter and returns the new terminal identifier.
func (a *Allocator) Allocate(ctx context.Context, storeCode string) (string, error) {
	storeCode = NormalizeStoreCode(storeCode)
	seq, err := a.Next(ctx, storeCode)
	if err != nil {
		return "", err
	}
	terminalID := FormatTerminalID(storeCode, a.prefix, a.pad, seq)
	log.WithFields(log.Fields{"store_code": storeCode, "sequence": seq, "terminal_id": terminalID}).Debug("terminal allocated")
	return terminalID, nil
}

// Next atomically increments the counter for storeCode, creating it at 1, and returns the new value.
// The increment and the read are one statement so concurrent callers never observe the same value.
func (a *Allocator) Next(ctx context.Context, storeCode string) (int64, error) {
	storeCode = NormalizeStoreCode(storeCode)
	if storeCode == "" {
		return 0, ErrEmptyStoreCode
	}
	if a == nil || a.db == nil {
		return 0, fmt.Errorf("terminals: nil db")
	}

	table := models.TerminalSequence{}.TableName()
	query := fmt.Sprintf(`
		INSERT INTO %[1]s (store_code, "last", updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT (store_code) DO UPDATE
		SET "last" = %[1]s."last" + 1, updated_at = excluded.updated_at
		RETURNING "last"
	`, table)

	var last int64
	res := a.db.WithContext(ctx).Raw(query, storeCode, time.Now().UTC()).Scan(&last)
	if res.Error != nil {
		return 0, fmt.Errorf("terminals: allocate %s: %w", storeCode, res.Error)
	}
	if last <= 0 {
		return 0, fmt.Errorf("terminals: allocate %s: no sequence returned", storeCode)
	}
	return last, nil
}

// Peek returns the last allocated sequence number for storeCode, or 0 when none exists.
func (a *Allocator) Peek(ctx context.Context, storeCode string) (int64, error) {
	storeCode = NormalizeStoreCode(storeCode)
	if storeCode == "" {
		return 0, ErrEmptyStoreCode
	}
	var row models.TerminalSequence
	errFind := a.db.WithContext(ctx).Where("store_code = ?", storeCode).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("terminals: peek %s: %w", storeCode, errFind)
	}
	return row.Last, nil
}

// List returns every store counter ordered by store code.
func (a *Allocator) List(ctx context.Context) ([]models.TerminalSequence, error) {
	var rows []models.TerminalSequence
	if errFind := a.db.WithContext(ctx).Order("store_code ASC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("terminals: list: %w", errFind)
	}
	return rows, nil
}

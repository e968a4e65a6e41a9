// Package devices keeps the mapping from hardware device ids to store terminals.
package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	dbutil "github.com/tapterm/paybroker/internal/db"
	"github.com/tapterm/paybroker/internal/models"
	"github.com/tapterm/paybroker/internal/terminals"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UnknownDeviceID stands in for a bootstrap request that names no device.
const UnknownDeviceID = "UNKNOWN"

const (
	defaultListLimit = 100
	maxListLimit     = 500

	maxAllocateAttempts = 8
)

var (
	// ErrNotFound is returned when no device matches.
	ErrNotFound = errors.New("devices: not found")
	// ErrInvalidInput is returned for missing or malformed fields.
	ErrInvalidInput = errors.New("devices: invalid input")
	// ErrConflict is returned when a terminal id is already held by another device.
	ErrConflict = errors.New("devices: conflict")
)

// TerminalAllocator mints terminal identifiers for a store.
type TerminalAllocator interface {
	Allocate(ctx context.Context, storeCode string) (string, error)
}

// Defaults are applied to devices enrolled without explicit values.
type Defaults struct {
	StoreCode string
	Amount    int64
	Currency  string
}

// BootstrapResult describes the device a terminal should operate as.
type BootstrapResult struct {
	DeviceID     string `json:"deviceId"`
	StoreCode    string `json:"storeCode"`
	TerminalID   string `json:"terminalId"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	AutoEnrolled bool   `json:"autoEnrolled"`
}

// UpsertParams carries operator edits. A nil Amount means the default amount.
type UpsertParams struct {
	DeviceID   string
	StoreCode  string
	TerminalID string
	Amount     *int64
	Currency   string
}

// Service reads and writes device records.
type Service struct {
	db        *gorm.DB
	allocator TerminalAllocator
	defaults  Defaults
}

// NewService constructs a Service.
func NewService(db *gorm.DB, allocator TerminalAllocator, defaults Defaults) *Service {
	defaults.StoreCode = terminals.NormalizeStoreCode(defaults.StoreCode)
	defaults.Currency = strings.TrimSpace(defaults.Currency)
	return &Service{db: db, allocator: allocator, defaults: defaults}
}

// NormalizeDeviceID trims and upper-cases a device id.
func NormalizeDeviceID(deviceID string) string {
	return strings.ToUpper(strings.TrimSpace(deviceID))
}

// Bootstrap returns the device's enrollment, creating it with a freshly
// allocated terminal id on first contact. Concurrent first contacts for the
// same device converge on one row; the losing allocation leaves a gap in the
// store sequence.
func (s *Service) Bootstrap(ctx context.Context, deviceID, storeCode string) (BootstrapResult, error) {
	deviceID = NormalizeDeviceID(deviceID)
	if deviceID == "" {
		deviceID = UnknownDeviceID
	}
	storeCode = s.storeOrDefault(storeCode)

	existing, errGet := s.Get(ctx, deviceID)
	if errGet == nil {
		return resultFor(existing, false), nil
	}
	if !errors.Is(errGet, ErrNotFound) {
		return BootstrapResult{}, errGet
	}

	terminalID, errAlloc := s.allocateFree(ctx, storeCode)
	if errAlloc != nil {
		return BootstrapResult{}, errAlloc
	}
	row := models.Device{
		DeviceID:   deviceID,
		StoreCode:  storeCode,
		TerminalID: terminalID,
		Amount:     s.defaults.Amount,
		Currency:   s.defaults.Currency,
		Status:     models.DeviceStatusActive,
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "device_id"}}, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return BootstrapResult{}, fmt.Errorf("%w: terminalId %s already assigned", ErrConflict, terminalID)
		}
		return BootstrapResult{}, fmt.Errorf("devices: enroll %s: %w", deviceID, res.Error)
	}
	if res.RowsAffected == 0 {
		winner, errWinner := s.Get(ctx, deviceID)
		if errWinner != nil {
			return BootstrapResult{}, errWinner
		}
		log.WithFields(log.Fields{"device_id": deviceID, "discarded_terminal_id": terminalID}).Debug("concurrent enrollment lost")
		return resultFor(winner, false), nil
	}

	log.WithFields(log.Fields{
		"device_id":   row.DeviceID,
		"store_code":  row.StoreCode,
		"terminal_id": row.TerminalID,
	}).Info("device auto-enrolled")
	return resultFor(&row, true), nil
}

// Upsert creates or overwrites a device. Without an explicit terminal id a
// fresh one is allocated.
func (s *Service) Upsert(ctx context.Context, params UpsertParams) (*models.Device, error) {
	deviceID := NormalizeDeviceID(params.DeviceID)
	if deviceID == "" {
		return nil, fmt.Errorf("%w: deviceId required", ErrInvalidInput)
	}
	storeCode := s.storeOrDefault(params.StoreCode)
	amount := s.defaults.Amount
	if params.Amount != nil {
		amount = *params.Amount
	}
	currency := strings.TrimSpace(params.Currency)
	if currency == "" {
		currency = s.defaults.Currency
	}
	terminalID := strings.TrimSpace(params.TerminalID)
	if terminalID == "" {
		allocated, errAlloc := s.allocateFree(ctx, storeCode)
		if errAlloc != nil {
			return nil, errAlloc
		}
		terminalID = allocated
	} else {
		holder, errHolder := s.terminalHolder(ctx, terminalID)
		if errHolder != nil {
			return nil, errHolder
		}
		if holder != "" && holder != deviceID {
			return nil, fmt.Errorf("%w: terminalId already assigned to %s", ErrConflict, holder)
		}
	}

	row := models.Device{
		DeviceID:   deviceID,
		StoreCode:  storeCode,
		TerminalID: terminalID,
		Amount:     amount,
		Currency:   currency,
		Status:     models.DeviceStatusActive,
	}
	errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"store_code", "terminal_id", "amount", "currency", "status", "updated_at"}),
	}).Create(&row).Error
	if errUpsert != nil {
		if errors.Is(errUpsert, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: terminalId %s already assigned", ErrConflict, terminalID)
		}
		return nil, fmt.Errorf("devices: upsert %s: %w", deviceID, errUpsert)
	}

	log.WithFields(log.Fields{"device_id": deviceID, "store_code": storeCode, "terminal_id": terminalID}).Info("device upserted")
	return s.Get(ctx, deviceID)
}

// Delete removes a device. Deleting an unknown device succeeds.
func (s *Service) Delete(ctx context.Context, deviceID string) error {
	deviceID = NormalizeDeviceID(deviceID)
	if deviceID == "" {
		return fmt.Errorf("%w: deviceId required", ErrInvalidInput)
	}
	res := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Delete(&models.Device{})
	if res.Error != nil {
		return fmt.Errorf("devices: delete %s: %w", deviceID, res.Error)
	}
	if res.RowsAffected > 0 {
		log.WithField("device_id", deviceID).Info("device deleted")
	}
	return nil
}

// Get returns a device by id.
func (s *Service) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	deviceID = NormalizeDeviceID(deviceID)
	var row models.Device
	if errFind := s.db.WithContext(ctx).Where("device_id = ?", deviceID).Take(&row).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, deviceID)
		}
		return nil, fmt.Errorf("devices: load %s: %w", deviceID, errFind)
	}
	return &row, nil
}

// List returns devices newest first, optionally filtered by a keyword matched
// against device, store and terminal ids.
func (s *Service) List(ctx context.Context, limit int, keyword string) ([]models.Device, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	q := s.db.WithContext(ctx).Model(&models.Device{})
	if kw := strings.TrimSpace(keyword); kw != "" {
		pattern := dbutil.NormalizeLikePattern(s.db, "%"+kw+"%")
		q = q.Where(
			dbutil.CaseInsensitiveLikeExpr(s.db, "device_id")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(s.db, "store_code")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(s.db, "terminal_id"),
			pattern, pattern, pattern,
		)
	}
	var rows []models.Device
	if errFind := q.Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("devices: list: %w", errFind)
	}
	return rows, nil
}

// Defaults exposes the enrollment defaults.
func (s *Service) Defaults() Defaults {
	return s.defaults
}

// allocateFree draws terminal ids until one is not held by a device. Ids an
// operator assigned by hand are skipped and stay as gaps in the sequence.
func (s *Service) allocateFree(ctx context.Context, storeCode string) (string, error) {
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		terminalID, errAlloc := s.allocator.Allocate(ctx, storeCode)
		if errAlloc != nil {
			return "", fmt.Errorf("devices: allocate terminal: %w", errAlloc)
		}
		holder, errHolder := s.terminalHolder(ctx, terminalID)
		if errHolder != nil {
			return "", errHolder
		}
		if holder == "" {
			return terminalID, nil
		}
		log.WithFields(log.Fields{"terminal_id": terminalID, "device_id": holder}).Warn("allocated terminal id already assigned, skipping")
	}
	return "", fmt.Errorf("%w: no free terminalId for store %s", ErrConflict, storeCode)
}

// terminalHolder returns the device holding terminalID, or "" when it is free.
func (s *Service) terminalHolder(ctx context.Context, terminalID string) (string, error) {
	var row models.Device
	errFind := s.db.WithContext(ctx).Select("device_id").Where("terminal_id = ?", terminalID).Take(&row).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if errFind != nil {
		return "", fmt.Errorf("devices: lookup terminal %s: %w", terminalID, errFind)
	}
	return row.DeviceID, nil
}

func (s *Service) storeOrDefault(storeCode string) string {
	storeCode = terminals.NormalizeStoreCode(storeCode)
	if storeCode == "" {
		return s.defaults.StoreCode
	}
	return storeCode
}

func resultFor(row *models.Device, autoEnrolled bool) BootstrapResult {
	return BootstrapResult{
		DeviceID:     row.DeviceID,
		StoreCode:    row.StoreCode,
		TerminalID:   row.TerminalID,
		Amount:       row.Amount,
		Currency:     row.Currency,
		AutoEnrolled: autoEnrolled,
	}
}

package models

import "time"

// DeviceStatusActive marks an enrolled device that may open sessions.
const DeviceStatusActive = "active"

// Device maps a hardware device identifier to a store terminal and its default charge.
type Device struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"-"` // Primary key.

	DeviceID   string `gorm:"column:device_id;type:text;not null;uniqueIndex" json:"deviceId"`     // Upper-cased hardware identifier.
	StoreCode  string `gorm:"type:text;not null;index" json:"storeCode"`                           // Owning store code.
	TerminalID string `gorm:"column:terminal_id;type:text;not null;uniqueIndex" json:"terminalId"` // Assigned terminal identifier.

	Amount   int64  `gorm:"not null;default:0" json:"amount"`                  // Default amount in minor units.
	Currency string `gorm:"type:text;not null" json:"currency"`                // ISO currency code.
	Status   string `gorm:"type:text;not null;default:'active'" json:"status"` // Enrollment status.

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"createdAt"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"` // Last update timestamp.
}

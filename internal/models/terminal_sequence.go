package models

import "time"

// TerminalSequence stores the last terminal number minted for a store.
type TerminalSequence struct {
	StoreCode string    `gorm:"column:store_code;type:text;primaryKey"` // Store code.
	Last      int64     `gorm:"not null;default:0"`                     // Last allocated sequence number.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"`                // Last update timestamp.
}

// TableName overrides the default table name.
func (TerminalSequence) TableName() string {
	return "terminal_sequences"
}

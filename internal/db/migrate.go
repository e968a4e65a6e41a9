package db

import (
	"fmt"

	"github.com/tapterm/paybroker/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the broker tables.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.Device{},
		&models.TerminalSequence{},
		&models.PaymentSession{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	return nil
}

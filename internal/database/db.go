package database

import (
	"log"

	"campuspoints/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		log.Println("WARNING: Failed to auto-migrate models:", err)
	}

	return db, nil
}

// Migrate auto-migrates every platform model. Split out so tests can run the
// same schema against an in-memory database.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Transaction{},
		&model.Promotion{},
		&model.PromotionUsage{},
		&model.Event{},
		&model.EventOrganizer{},
		&model.EventGuest{},
		&model.PasswordReset{},
		&model.ResetThrottle{},
	)
}

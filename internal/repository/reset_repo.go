package repository

import (
	"context"
	"errors"
	"time"

	"campuspoints/internal/model"

	"gorm.io/gorm"
)

// ResetRepository defines the interface for data access of password-reset
// tokens and the per-IP request throttle.
type ResetRepository interface {
	// Create inserts a new token after expiring older unconsumed tokens of
	// the same purpose for the user.
	Create(ctx context.Context, reset *model.PasswordReset) error
	GetByToken(ctx context.Context, token string) (*model.PasswordReset, error)
	Consume(ctx context.Context, reset *model.PasswordReset, at time.Time) error

	// Throttle records a reset request for clientIP and reports whether it is
	// allowed under the window. The check and the timestamp write share one
	// database transaction, so the 60s window holds across processes.
	Throttle(ctx context.Context, clientIP string, now time.Time, window time.Duration) (bool, error)
}

type resetRepository struct {
	db *gorm.DB
}

// NewResetRepository returns a new instance of ResetRepository
func NewResetRepository(db *gorm.DB) ResetRepository {
	return &resetRepository{db: db}
}

func (r *resetRepository) Create(ctx context.Context, reset *model.PasswordReset) error {
	db := GetDB(ctx, r.db)
	if err := db.Model(&model.PasswordReset{}).
		Where("user_id = ? AND purpose = ? AND consumed_at IS NULL", reset.UserID, reset.Purpose).
		Update("expires_at", time.Now()).Error; err != nil {
		return err
	}
	return db.Create(reset).Error
}

func (r *resetRepository) GetByToken(ctx context.Context, token string) (*model.PasswordReset, error) {
	var reset model.PasswordReset
	if err := GetDB(ctx, r.db).Preload("User").
		First(&reset, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &reset, nil
}

func (r *resetRepository) Consume(ctx context.Context, reset *model.PasswordReset, at time.Time) error {
	reset.ConsumedAt = &at
	return GetDB(ctx, r.db).Save(reset).Error
}

func (r *resetRepository) Throttle(ctx context.Context, clientIP string, now time.Time, window time.Duration) (bool, error) {
	allowed := false
	err := GetDB(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		var entry model.ResetThrottle
		err := tx.First(&entry, "client_ip = ?", clientIP).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			allowed = true
			return tx.Create(&model.ResetThrottle{ClientIP: clientIP, LastRequestAt: now}).Error
		case err != nil:
			return err
		}

		if now.Sub(entry.LastRequestAt) < window {
			allowed = false
			return nil
		}

		allowed = true
		entry.LastRequestAt = now
		return tx.Save(&entry).Error
	})
	return allowed, err
}

package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ResetPurposeActivation = "activation"
	ResetPurposeReset      = "reset"
)

// PasswordReset is a single-use token for account activation or password
// recovery. Issuing a new token expires older unconsumed tokens of the same
// purpose for the user.
type PasswordReset struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"-"`
	Token      string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	Purpose    string     `gorm:"type:varchar(20);not null" json:"-"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"-"`
	User       *User      `gorm:"foreignKey:UserID" json:"-"`
	ExpiresAt  time.Time  `gorm:"not null" json:"-"`
	ConsumedAt *time.Time `json:"-"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"-"`
}

func (r *PasswordReset) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ResetThrottle tracks the last password-reset request per client IP.
// Stored in the database so the 60s window holds across processes and
// restarts.
type ResetThrottle struct {
	ClientIP      string    `gorm:"type:varchar(45);primaryKey" json:"-"`
	LastRequestAt time.Time `gorm:"not null" json:"-"`
}

func (ResetThrottle) TableName() string {
	return "reset_throttles"
}

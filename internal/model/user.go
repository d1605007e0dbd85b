package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a loyalty-program member. Points holds the live balance;
// every mutation of it goes through a ledger transaction.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Utorid       string     `gorm:"type:varchar(8);uniqueIndex;not null" json:"utorid"`
	Name         string     `gorm:"type:varchar(50);not null" json:"name"`
	Email        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash *string    `gorm:"type:varchar(255)" json:"-"`
	Role         string     `gorm:"type:varchar(20);not null;default:'regular'" json:"role"`
	Points       int        `gorm:"not null;default:0" json:"points"`
	Verified     bool       `gorm:"not null;default:false" json:"verified"`
	Suspicious   bool       `gorm:"not null;default:false" json:"suspicious"`
	Birthday     *string    `gorm:"type:varchar(10)" json:"birthday"`
	AvatarURL    *string    `gorm:"type:varchar(255)" json:"avatarUrl"`
	LastLogin    *time.Time `json:"lastLogin"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Activated reports whether the user has completed account activation.
func (u *User) Activated() bool {
	return u.PasswordHash != nil
}

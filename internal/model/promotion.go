package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PromotionAutomatic = "automatic"
	PromotionOnetime   = "onetime"
)

// Promotion grants bonus points on qualifying purchases. Automatic promotions
// apply to every in-window purchase; onetime promotions apply at most once per
// user, tracked through PromotionUsage.
type Promotion struct {
	ID          uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string           `gorm:"type:varchar(100);not null" json:"name"`
	Description string           `gorm:"type:text;not null" json:"description"`
	Type        string           `gorm:"type:varchar(20);not null;index" json:"type"`
	StartTime   time.Time        `gorm:"not null" json:"startTime"`
	EndTime     time.Time        `gorm:"not null" json:"endTime"`
	MinSpending *decimal.Decimal `gorm:"type:decimal(10,2)" json:"minSpending"`
	Rate        *float64         `json:"rate"`
	Points      *int             `json:"points"`
	Published   bool             `gorm:"not null;default:false" json:"-"`
	CreatedAt   time.Time        `gorm:"autoCreateTime" json:"-"`
	UpdatedAt   time.Time        `gorm:"autoUpdateTime" json:"-"`
}

func (p *Promotion) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ActiveAt reports whether the promotion window covers t (start inclusive,
// end exclusive).
func (p *Promotion) ActiveAt(t time.Time) bool {
	return !t.Before(p.StartTime) && t.Before(p.EndTime)
}

// PromotionUsage records that a user consumed a onetime promotion. The
// composite unique index guarantees at most one use per (user, promotion).
type PromotionUsage struct {
	UserID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_promo_use,priority:1" json:"-"`
	PromotionID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_promo_use,priority:2" json:"promotionId"`
	Promotion     *Promotion `gorm:"foreignKey:PromotionID" json:"-"`
	TransactionID *uuid.UUID `gorm:"type:uuid" json:"transactionId"`
	UsedAt        *time.Time `json:"usedAt"`
}

func (PromotionUsage) TableName() string {
	return "promotion_usages"
}

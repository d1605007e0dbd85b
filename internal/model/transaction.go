package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction types. Amount carries the signed points delta for every type.
const (
	TxPurchase   = "purchase"
	TxRedemption = "redemption"
	TxTransfer   = "transfer"
	TxAdjustment = "adjustment"
	TxEvent      = "event"
)

// Transaction is one row of the append-only points ledger. Rows are immutable
// after creation except for the suspicious flag and the redemption processed
// transition, both of which adjust the owner's balance in the same database
// transaction.
type Transaction struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Type        string    `gorm:"type:varchar(20);not null;index" json:"type"`
	Amount      int       `gorm:"not null" json:"amount"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	User        *User     `gorm:"foreignKey:UserID" json:"-"`
	CreatedByID uuid.UUID `gorm:"type:uuid;not null;index" json:"-"`
	CreatedBy   *User     `gorm:"foreignKey:CreatedByID" json:"-"`

	// purchase
	Spent *decimal.Decimal `gorm:"type:decimal(10,2)" json:"spent,omitempty"`

	// redemption
	Redeemed      *int       `json:"redeemed,omitempty"`
	Processed     bool       `gorm:"not null;default:false" json:"-"`
	ProcessedByID *uuid.UUID `gorm:"type:uuid" json:"-"`
	ProcessedBy   *User      `gorm:"foreignKey:ProcessedByID" json:"-"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`

	// transfer
	RelatedUserID *uuid.UUID `gorm:"type:uuid;index" json:"-"`

	// adjustment
	RelatedTransactionID *uuid.UUID `gorm:"type:uuid" json:"relatedId,omitempty"`

	// event award
	EventID *uuid.UUID `gorm:"type:uuid;index" json:"eventId,omitempty"`

	Suspicious bool      `gorm:"not null;default:false" json:"suspicious"`
	Remark     string    `gorm:"type:text" json:"remark"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func ValidTransactionType(t string) bool {
	switch t {
	case TxPurchase, TxRedemption, TxTransfer, TxAdjustment, TxEvent:
		return true
	}
	return false
}

package repository

import (
	"context"
	"time"

	"campuspoints/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionFilter narrows List results. Zero-valued fields are ignored.
// RelatedID is only meaningful combined with Type: it matches the type's
// related column (counterparty user, prior transaction, or event).
type TransactionFilter struct {
	UserID      string
	Name        string // owner utorid or name, substring
	CreatedBy   string // creator utorid
	Suspicious  *bool
	PromotionID string
	Type        string
	RelatedID   string
	Amount      *int
	Operator    string // "gte" or "lte", with Amount
}

// TransactionRepository defines the interface for data access of ledger rows.
type TransactionRepository interface {
	Create(ctx context.Context, tx *model.Transaction) error
	GetByID(ctx context.Context, id string) (*model.Transaction, error)
	List(ctx context.Context, filter TransactionFilter, offset, limit int) ([]model.Transaction, int64, error)
	// Save persists the mutable fields of an existing row (suspicious flag).
	Save(ctx context.Context, tx *model.Transaction) error
	// MarkProcessed flips an unprocessed redemption to processed. The guard
	// lives in the UPDATE itself so two concurrent processors cannot both
	// claim the row; returns false when the row was already processed.
	MarkProcessed(ctx context.Context, txID string, processorID uuid.UUID, at time.Time) (bool, error)
	HasPromotionUsage(ctx context.Context, userID, promotionID string) (bool, error)
	CreatePromotionUsage(ctx context.Context, usage *model.PromotionUsage) error
	// PromotionIDsForTransactions batch-loads the promotion ids consumed by
	// each of the given purchase rows.
	PromotionIDsForTransactions(ctx context.Context, txIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
	ListPromotionUsage(ctx context.Context, promotionID string, offset, limit int) ([]model.PromotionUsage, int64, error)
}

type transactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository returns a new instance of TransactionRepository
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	return GetDB(ctx, r.db).Create(tx).Error
}

func (r *transactionRepository) GetByID(ctx context.Context, id string) (*model.Transaction, error) {
	var tx model.Transaction
	if err := GetDB(ctx, r.db).
		Preload("User").Preload("CreatedBy").Preload("ProcessedBy").
		First(&tx, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepository) List(ctx context.Context, filter TransactionFilter, offset, limit int) ([]model.Transaction, int64, error) {
	q := GetDB(ctx, r.db).Model(&model.Transaction{})

	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Name != "" {
		pattern := "%" + filter.Name + "%"
		q = q.Where("user_id IN (?)",
			GetDB(ctx, r.db).Model(&model.User{}).Select("id").
				Where("utorid LIKE ? OR name LIKE ?", pattern, pattern))
	}
	if filter.CreatedBy != "" {
		q = q.Where("created_by_id IN (?)",
			GetDB(ctx, r.db).Model(&model.User{}).Select("id").
				Where("utorid = ?", filter.CreatedBy))
	}
	if filter.Suspicious != nil {
		q = q.Where("suspicious = ?", *filter.Suspicious)
	}
	if filter.PromotionID != "" {
		q = q.Where("id IN (?)",
			GetDB(ctx, r.db).Model(&model.PromotionUsage{}).Select("transaction_id").
				Where("promotion_id = ?", filter.PromotionID))
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)

		if filter.RelatedID != "" {
			switch filter.Type {
			case model.TxTransfer:
				q = q.Where("related_user_id = ?", filter.RelatedID)
			case model.TxAdjustment:
				q = q.Where("related_transaction_id = ?", filter.RelatedID)
			case model.TxEvent:
				q = q.Where("event_id = ?", filter.RelatedID)
			}
		}
	}
	if filter.Amount != nil {
		if filter.Operator == "lte" {
			q = q.Where("amount <= ?", *filter.Amount)
		} else {
			q = q.Where("amount >= ?", *filter.Amount)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []model.Transaction
	if err := q.Preload("User").Preload("CreatedBy").Preload("ProcessedBy").
		Order("created_at desc").Offset(offset).Limit(limit).Find(&txs).Error; err != nil {
		return nil, 0, err
	}

	return txs, total, nil
}

func (r *transactionRepository) Save(ctx context.Context, tx *model.Transaction) error {
	return GetDB(ctx, r.db).Save(tx).Error
}

func (r *transactionRepository) MarkProcessed(ctx context.Context, txID string, processorID uuid.UUID, at time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Transaction{}).
		Where("id = ? AND processed = ?", txID, false).
		Updates(map[string]interface{}{
			"processed":       true,
			"processed_by_id": processorID,
			"processed_at":    at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *transactionRepository) HasPromotionUsage(ctx context.Context, userID, promotionID string) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.PromotionUsage{}).
		Where("user_id = ? AND promotion_id = ?", userID, promotionID).
		Count(&count).Error
	return count > 0, err
}

func (r *transactionRepository) CreatePromotionUsage(ctx context.Context, usage *model.PromotionUsage) error {
	return GetDB(ctx, r.db).Create(usage).Error
}

func (r *transactionRepository) PromotionIDsForTransactions(ctx context.Context, txIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	result := make(map[uuid.UUID][]uuid.UUID, len(txIDs))
	if len(txIDs) == 0 {
		return result, nil
	}

	var usages []model.PromotionUsage
	if err := GetDB(ctx, r.db).
		Where("transaction_id IN ?", txIDs).
		Find(&usages).Error; err != nil {
		return nil, err
	}

	for _, u := range usages {
		if u.TransactionID != nil {
			result[*u.TransactionID] = append(result[*u.TransactionID], u.PromotionID)
		}
	}
	return result, nil
}

func (r *transactionRepository) ListPromotionUsage(ctx context.Context, promotionID string, offset, limit int) ([]model.PromotionUsage, int64, error) {
	q := GetDB(ctx, r.db).Model(&model.PromotionUsage{}).Where("promotion_id = ?", promotionID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var usages []model.PromotionUsage
	if err := q.Order("used_at desc").Offset(offset).Limit(limit).Find(&usages).Error; err != nil {
		return nil, 0, err
	}

	return usages, total, nil
}

package repository

import (
	"context"
	"time"

	"campuspoints/internal/model"

	"gorm.io/gorm"
)

// PromotionFilter narrows List results for managers. Zero-valued fields are
// ignored. Started and Ended are mutually exclusive at the service layer.
type PromotionFilter struct {
	Name      string
	Type      string
	Published *bool
	Started   *bool
	Ended     *bool
}

// PromotionRepository defines the interface for data access of promotions.
type PromotionRepository interface {
	Create(ctx context.Context, p *model.Promotion) error
	GetByID(ctx context.Context, id string) (*model.Promotion, error)
	List(ctx context.Context, filter PromotionFilter, now time.Time, offset, limit int) ([]model.Promotion, int64, error)
	// ListAvailable returns published, window-active promotions the user has
	// not yet consumed, ordered ascending by id for determinism.
	ListAvailable(ctx context.Context, userID string, promoType string, now time.Time, offset, limit int) ([]model.Promotion, int64, error)
	Update(ctx context.Context, p *model.Promotion) error
	Delete(ctx context.Context, id string) error
}

type promotionRepository struct {
	db *gorm.DB
}

// NewPromotionRepository returns a new instance of PromotionRepository
func NewPromotionRepository(db *gorm.DB) PromotionRepository {
	return &promotionRepository{db: db}
}

func (r *promotionRepository) Create(ctx context.Context, p *model.Promotion) error {
	return GetDB(ctx, r.db).Create(p).Error
}

func (r *promotionRepository) GetByID(ctx context.Context, id string) (*model.Promotion, error) {
	var p model.Promotion
	if err := GetDB(ctx, r.db).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *promotionRepository) List(ctx context.Context, filter PromotionFilter, now time.Time, offset, limit int) ([]model.Promotion, int64, error) {
	q := GetDB(ctx, r.db).Model(&model.Promotion{})

	if filter.Name != "" {
		q = q.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Published != nil {
		q = q.Where("published = ?", *filter.Published)
	}
	if filter.Started != nil {
		if *filter.Started {
			q = q.Where("start_time <= ?", now)
		} else {
			q = q.Where("start_time > ?", now)
		}
	}
	if filter.Ended != nil {
		if *filter.Ended {
			q = q.Where("end_time <= ?", now)
		} else {
			q = q.Where("end_time > ?", now)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var promos []model.Promotion
	if err := q.Order("id asc").Offset(offset).Limit(limit).Find(&promos).Error; err != nil {
		return nil, 0, err
	}

	return promos, total, nil
}

func (r *promotionRepository) ListAvailable(ctx context.Context, userID string, promoType string, now time.Time, offset, limit int) ([]model.Promotion, int64, error) {
	q := GetDB(ctx, r.db).Model(&model.Promotion{}).
		Where("published = ?", true).
		Where("start_time <= ? AND end_time > ?", now, now).
		Where("id NOT IN (?)",
			GetDB(ctx, r.db).Model(&model.PromotionUsage{}).Select("promotion_id").
				Where("user_id = ?", userID))

	if promoType != "" {
		q = q.Where("type = ?", promoType)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var promos []model.Promotion
	if err := q.Order("id asc").Offset(offset).Limit(limit).Find(&promos).Error; err != nil {
		return nil, 0, err
	}

	return promos, total, nil
}

func (r *promotionRepository) Update(ctx context.Context, p *model.Promotion) error {
	return GetDB(ctx, r.db).Save(p).Error
}

func (r *promotionRepository) Delete(ctx context.Context, id string) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Promotion{}).Error
}

package repository

import (
	"context"

	"campuspoints/internal/model"

	"gorm.io/gorm"
)

// UserFilter narrows List results. Zero-valued fields are ignored.
type UserFilter struct {
	Name      string // matches utorid or name, substring
	Role      string
	Verified  *bool
	Activated *bool
}

// UserRepository defines the interface for data access of User entities
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByUtorid(ctx context.Context, utorid string) (*model.User, error)
	List(ctx context.Context, filter UserFilter, offset, limit int) ([]model.User, int64, error)
	Update(ctx context.Context, user *model.User) error
	// CreditPoints adds amount to the user's balance.
	CreditPoints(ctx context.Context, id string, amount int) error
	// DebitPoints subtracts amount from the user's balance only if the
	// balance covers it, reporting whether the debit applied. The guard is
	// part of the UPDATE itself, so concurrent debits cannot both pass a
	// stale balance check.
	DebitPoints(ctx context.Context, id string, amount int) (bool, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUtorid(ctx context.Context, utorid string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "utorid = ?", utorid).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) List(ctx context.Context, filter UserFilter, offset, limit int) ([]model.User, int64, error) {
	q := GetDB(ctx, r.db).Model(&model.User{})

	if filter.Name != "" {
		pattern := "%" + filter.Name + "%"
		q = q.Where("utorid LIKE ? OR name LIKE ?", pattern, pattern)
	}
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if filter.Verified != nil {
		q = q.Where("verified = ?", *filter.Verified)
	}
	if filter.Activated != nil {
		if *filter.Activated {
			q = q.Where("password_hash IS NOT NULL")
		} else {
			q = q.Where("password_hash IS NULL")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []model.User
	if err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}

	return users, total, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Save(user).Error
}

func (r *userRepository) CreditPoints(ctx context.Context, id string, amount int) error {
	return GetDB(ctx, r.db).Model(&model.User{}).
		Where("id = ?", id).
		Update("points", gorm.Expr("points + ?", amount)).Error
}

func (r *userRepository) DebitPoints(ctx context.Context, id string, amount int) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.User{}).
		Where("id = ? AND points >= ?", id, amount).
		Update("points", gorm.Expr("points - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

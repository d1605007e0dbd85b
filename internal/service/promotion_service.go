package service

import (
	"context"
	"errors"
	"time"

	"campuspoints/internal/model"
	"campuspoints/internal/repository"
	"campuspoints/pkg/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DTOs for Request validation
type CreatePromotionRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Type        string   `json:"type" binding:"required"`
	StartTime   string   `json:"startTime" binding:"required"`
	EndTime     string   `json:"endTime" binding:"required"`
	MinSpending *float64 `json:"minSpending"`
	Rate        *float64 `json:"rate"`
	Points      *int     `json:"points"`
}

type UpdatePromotionRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Type        *string  `json:"type"`
	StartTime   *string  `json:"startTime"`
	EndTime     *string  `json:"endTime"`
	MinSpending *float64 `json:"minSpending"`
	Rate        *float64 `json:"rate"`
	Points      *int     `json:"points"`
	Published   *bool    `json:"published"`
}

type PromotionResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	MinSpending *float64  `json:"minSpending"`
	Rate        *float64  `json:"rate"`
	Points      *int      `json:"points"`
	Published   bool      `json:"published"`
}

type PromotionUsageResponse struct {
	PromotionID   uuid.UUID  `json:"promotionId"`
	Utorid        string     `json:"utorid"`
	TransactionID *uuid.UUID `json:"transactionId"`
	UsedAt        *string    `json:"usedAt"`
}

// PromotionService defines the interface for business logic related to
// promotions and their per-user usage.
type PromotionService interface {
	Create(ctx context.Context, req CreatePromotionRequest) (*PromotionResponse, error)
	// Get applies visibility rules: non-managers only see published,
	// window-active promotions.
	Get(ctx context.Context, id, callerRole string) (*PromotionResponse, error)
	ListAdmin(ctx context.Context, filter repository.PromotionFilter, offset, limit int) ([]PromotionResponse, int64, error)
	ListAvailable(ctx context.Context, userID, promoType string, offset, limit int) ([]PromotionResponse, int64, error)
	Update(ctx context.Context, id string, req UpdatePromotionRequest) (*PromotionResponse, error)
	Delete(ctx context.Context, id string) error
	ListUsage(ctx context.Context, promotionID string, offset, limit int) ([]PromotionUsageResponse, int64, error)
}

type promotionService struct {
	promoRepo repository.PromotionRepository
	txRepo    repository.TransactionRepository
	userRepo  repository.UserRepository
}

// NewPromotionService returns a new instance of PromotionService
func NewPromotionService(promoRepo repository.PromotionRepository, txRepo repository.TransactionRepository, userRepo repository.UserRepository) PromotionService {
	return &promotionService{promoRepo: promoRepo, txRepo: txRepo, userRepo: userRepo}
}

func (s *promotionService) Create(ctx context.Context, req CreatePromotionRequest) (*PromotionResponse, error) {
	if req.Type != model.PromotionAutomatic && req.Type != model.PromotionOnetime {
		return nil, apperr.BadRequest("Type must be automatic or onetime")
	}

	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return nil, apperr.BadRequest("startTime must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return nil, apperr.BadRequest("endTime must be RFC3339")
	}
	if !end.After(start) {
		return nil, apperr.BadRequest("endTime must be after startTime")
	}
	if msg := validatePromotionNumbers(req.MinSpending, req.Rate, req.Points); msg != "" {
		return nil, apperr.BadRequest(msg)
	}

	promo := &model.Promotion{
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		StartTime:   start,
		EndTime:     end,
		Rate:        req.Rate,
		Points:      req.Points,
		Published:   false,
	}
	if req.MinSpending != nil {
		min := decimal.NewFromFloat(*req.MinSpending)
		promo.MinSpending = &min
	}

	if err := s.promoRepo.Create(ctx, promo); err != nil {
		return nil, err
	}

	res := toPromotionResponse(promo)
	return &res, nil
}

func (s *promotionService) Get(ctx context.Context, id, callerRole string) (*PromotionResponse, error) {
	promo, err := s.promoRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Promotion not found")
		}
		return nil, err
	}

	if !model.RoleAtLeast(callerRole, model.RoleManager) {
		if !promo.Published || !promo.ActiveAt(time.Now()) {
			return nil, apperr.NotFound("Promotion not found")
		}
	}

	res := toPromotionResponse(promo)
	return &res, nil
}

func (s *promotionService) ListAdmin(ctx context.Context, filter repository.PromotionFilter, offset, limit int) ([]PromotionResponse, int64, error) {
	if filter.Started != nil && filter.Ended != nil {
		return nil, 0, apperr.BadRequest("Specify either started or ended, not both")
	}

	promos, total, err := s.promoRepo.List(ctx, filter, time.Now(), offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return mapPromotions(promos), total, nil
}

func (s *promotionService) ListAvailable(ctx context.Context, userID, promoType string, offset, limit int) ([]PromotionResponse, int64, error) {
	if promoType != "" && promoType != model.PromotionAutomatic && promoType != model.PromotionOnetime {
		return nil, 0, apperr.BadRequest("Type must be automatic or onetime")
	}

	promos, total, err := s.promoRepo.ListAvailable(ctx, userID, promoType, time.Now(), offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return mapPromotions(promos), total, nil
}

func (s *promotionService) Update(ctx context.Context, id string, req UpdatePromotionRequest) (*PromotionResponse, error) {
	promo, err := s.promoRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Promotion not found")
		}
		return nil, err
	}

	now := time.Now()
	started := !now.Before(promo.StartTime)
	ended := !now.Before(promo.EndTime)

	// Terms locked once the window opens; only the end may still move, and
	// only before it has passed.
	if started && (req.StartTime != nil || req.MinSpending != nil || req.Rate != nil || req.Points != nil || req.Type != nil) {
		return nil, apperr.BadRequest("Cannot edit promotion terms after it has started")
	}
	if ended && req.EndTime != nil {
		return nil, apperr.BadRequest("Cannot edit endTime after the promotion has ended")
	}

	if req.Name != nil {
		promo.Name = *req.Name
	}
	if req.Description != nil {
		promo.Description = *req.Description
	}
	if req.Type != nil {
		if *req.Type != model.PromotionAutomatic && *req.Type != model.PromotionOnetime {
			return nil, apperr.BadRequest("Type must be automatic or onetime")
		}
		promo.Type = *req.Type
	}
	if req.StartTime != nil {
		start, err := time.Parse(time.RFC3339, *req.StartTime)
		if err != nil {
			return nil, apperr.BadRequest("startTime must be RFC3339")
		}
		promo.StartTime = start
	}
	if req.EndTime != nil {
		end, err := time.Parse(time.RFC3339, *req.EndTime)
		if err != nil {
			return nil, apperr.BadRequest("endTime must be RFC3339")
		}
		promo.EndTime = end
	}
	if !promo.EndTime.After(promo.StartTime) {
		return nil, apperr.BadRequest("endTime must be after startTime")
	}
	if msg := validatePromotionNumbers(req.MinSpending, req.Rate, req.Points); msg != "" {
		return nil, apperr.BadRequest(msg)
	}
	if req.MinSpending != nil {
		min := decimal.NewFromFloat(*req.MinSpending)
		promo.MinSpending = &min
	}
	if req.Rate != nil {
		promo.Rate = req.Rate
	}
	if req.Points != nil {
		promo.Points = req.Points
	}
	if req.Published != nil {
		if !*req.Published {
			return nil, apperr.BadRequest("Published can only be set to true")
		}
		promo.Published = true
	}

	if err := s.promoRepo.Update(ctx, promo); err != nil {
		return nil, err
	}

	res := toPromotionResponse(promo)
	return &res, nil
}

func (s *promotionService) Delete(ctx context.Context, id string) error {
	promo, err := s.promoRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Promotion not found")
		}
		return err
	}

	if !time.Now().Before(promo.StartTime) {
		return apperr.Forbidden("Cannot delete a promotion that has started")
	}

	return s.promoRepo.Delete(ctx, id)
}

func (s *promotionService) ListUsage(ctx context.Context, promotionID string, offset, limit int) ([]PromotionUsageResponse, int64, error) {
	if _, err := s.promoRepo.GetByID(ctx, promotionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, apperr.NotFound("Promotion not found")
		}
		return nil, 0, err
	}

	usages, total, err := s.txRepo.ListPromotionUsage(ctx, promotionID, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]PromotionUsageResponse, 0, len(usages))
	for _, u := range usages {
		entry := PromotionUsageResponse{
			PromotionID:   u.PromotionID,
			TransactionID: u.TransactionID,
		}
		if u.UsedAt != nil {
			formatted := u.UsedAt.UTC().Format(time.RFC3339)
			entry.UsedAt = &formatted
		}
		if user, err := s.userRepo.GetByID(ctx, u.UserID.String()); err == nil {
			entry.Utorid = user.Utorid
		}
		res = append(res, entry)
	}
	return res, total, nil
}

func validatePromotionNumbers(minSpending, rate *float64, points *int) string {
	if minSpending != nil && *minSpending < 0 {
		return "minSpending must be non-negative"
	}
	if rate != nil && *rate < 0 {
		return "rate must be non-negative"
	}
	if points != nil && *points < 0 {
		return "points must be non-negative"
	}
	return ""
}

func mapPromotions(promos []model.Promotion) []PromotionResponse {
	res := make([]PromotionResponse, 0, len(promos))
	for i := range promos {
		res = append(res, toPromotionResponse(&promos[i]))
	}
	return res
}

func toPromotionResponse(p *model.Promotion) PromotionResponse {
	res := PromotionResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Type:        p.Type,
		StartTime:   p.StartTime.UTC().Format(time.RFC3339),
		EndTime:     p.EndTime.UTC().Format(time.RFC3339),
		Rate:        p.Rate,
		Points:      p.Points,
		Published:   p.Published,
	}
	if p.MinSpending != nil {
		min, _ := p.MinSpending.Float64()
		res.MinSpending = &min
	}
	return res
}

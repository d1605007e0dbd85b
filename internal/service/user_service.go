package service

import (
	"context"
	"errors"
	"regexp"
	"time"

	"campuspoints/internal/model"
	"campuspoints/internal/repository"
	"campuspoints/pkg/apperr"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// availablePromotionCap bounds the promotions embedded in a user projection.
const availablePromotionCap = 100

var (
	utoridRe   = regexp.MustCompile(`^[a-zA-Z0-9]{7,8}$`)
	emailRe    = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@mail\.utoronto\.ca$`)
	birthdayRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// DTOs for Request validation
type CreateUserRequest struct {
	Utorid string `json:"utorid" binding:"required"`
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email" binding:"required"`
}

type CreateUserResponse struct {
	ID         uuid.UUID `json:"id"`
	Utorid     string    `json:"utorid"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Verified   bool      `json:"verified"`
	ExpiresAt  string    `json:"expiresAt"`
	ResetToken string    `json:"resetToken"`
}

type UpdateUserRequest struct {
	Email      *string `json:"email"`
	Verified   *bool   `json:"verified"`
	Suspicious *bool   `json:"suspicious"`
	Role       *string `json:"role"`
}

type UpdateMeRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Birthday *string `json:"birthday"`
}

type UpdatePasswordRequest struct {
	Old string `json:"old" binding:"required"`
	New string `json:"new" binding:"required"`
}

// UserResponse is the full projection managers and the owner see.
type UserResponse struct {
	ID         uuid.UUID           `json:"id"`
	Utorid     string              `json:"utorid"`
	Name       string              `json:"name"`
	Email      string              `json:"email"`
	Birthday   *string             `json:"birthday"`
	Role       string              `json:"role"`
	Points     int                 `json:"points"`
	CreatedAt  string              `json:"createdAt"`
	LastLogin  *string             `json:"lastLogin"`
	Verified   bool                `json:"verified"`
	Suspicious bool                `json:"suspicious"`
	AvatarURL  *string             `json:"avatarUrl"`
	Promotions []PromotionResponse `json:"promotions"`
}

// CashierUserView is the reduced projection non-manager staff see.
type CashierUserView struct {
	ID         uuid.UUID           `json:"id"`
	Utorid     string              `json:"utorid"`
	Name       string              `json:"name"`
	Points     int                 `json:"points"`
	Verified   bool                `json:"verified"`
	Promotions []PromotionResponse `json:"promotions"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	Register(ctx context.Context, req CreateUserRequest) (*CreateUserResponse, error)
	// GetUser returns the projection appropriate to callerRole: managers get
	// the full record, cashiers the reduced view.
	GetUser(ctx context.Context, id, callerRole string) (interface{}, error)
	GetMe(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, filter repository.UserFilter, offset, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id, callerRole string, req UpdateUserRequest) (*UserResponse, error)
	UpdateMe(ctx context.Context, id string, req UpdateMeRequest, avatarURL *string) (*UserResponse, error)
	UpdatePassword(ctx context.Context, id string, req UpdatePasswordRequest) error
}

type userService struct {
	userRepo  repository.UserRepository
	resetRepo repository.ResetRepository
	promoRepo repository.PromotionRepository
}

// NewUserService returns a new instance of UserService
func NewUserService(userRepo repository.UserRepository, resetRepo repository.ResetRepository, promoRepo repository.PromotionRepository) UserService {
	return &userService{userRepo: userRepo, resetRepo: resetRepo, promoRepo: promoRepo}
}

func (s *userService) Register(ctx context.Context, req CreateUserRequest) (*CreateUserResponse, error) {
	if !utoridRe.MatchString(req.Utorid) {
		return nil, apperr.BadRequest("Utorid must be 7-8 alphanumeric characters")
	}
	if !emailRe.MatchString(req.Email) {
		return nil, apperr.BadRequest("Email must be a valid @mail.utoronto.ca address")
	}
	if len(req.Name) < 1 || len(req.Name) > 50 {
		return nil, apperr.BadRequest("Name must be 1-50 characters long")
	}

	if _, err := s.userRepo.GetByUtorid(ctx, req.Utorid); err == nil {
		return nil, apperr.Conflict("User already exists")
	}

	user := &model.User{
		Utorid: req.Utorid,
		Name:   req.Name,
		Email:  req.Email,
		Role:   model.RoleRegular,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	reset := &model.PasswordReset{
		Token:     uuid.New().String(),
		Purpose:   model.ResetPurposeActivation,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(activationTTL),
	}
	if err := s.resetRepo.Create(ctx, reset); err != nil {
		return nil, err
	}

	return &CreateUserResponse{
		ID:         user.ID,
		Utorid:     user.Utorid,
		Name:       user.Name,
		Email:      user.Email,
		Verified:   user.Verified,
		ExpiresAt:  reset.ExpiresAt.UTC().Format(time.RFC3339),
		ResetToken: reset.Token,
	}, nil
}

func (s *userService) GetUser(ctx context.Context, id, callerRole string) (interface{}, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, err
	}

	promos, err := s.availablePromotions(ctx, user.ID.String())
	if err != nil {
		return nil, err
	}

	if !model.RoleAtLeast(callerRole, model.RoleManager) {
		return &CashierUserView{
			ID:         user.ID,
			Utorid:     user.Utorid,
			Name:       user.Name,
			Points:     user.Points,
			Verified:   user.Verified,
			Promotions: promos,
		}, nil
	}

	return s.toResponse(user, promos), nil
}

func (s *userService) GetMe(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, err
	}

	promos, err := s.availablePromotions(ctx, user.ID.String())
	if err != nil {
		return nil, err
	}
	return s.toResponse(user, promos), nil
}

func (s *userService) ListUsers(ctx context.Context, filter repository.UserFilter, offset, limit int) ([]UserResponse, int64, error) {
	users, total, err := s.userRepo.List(ctx, filter, offset, limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]UserResponse, 0, len(users))
	for i := range users {
		res = append(res, *s.toResponse(&users[i], nil))
	}
	return res, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id, callerRole string, req UpdateUserRequest) (*UserResponse, error) {
	if req.Email == nil && req.Verified == nil && req.Suspicious == nil && req.Role == nil {
		return nil, apperr.BadRequest("No fields to update")
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("User not found")
		}
		return nil, err
	}

	if req.Email != nil {
		if !emailRe.MatchString(*req.Email) {
			return nil, apperr.BadRequest("Email must be a valid @mail.utoronto.ca address")
		}
		user.Email = *req.Email
	}
	if req.Verified != nil {
		if !*req.Verified {
			return nil, apperr.BadRequest("Verified can only be set to true")
		}
		user.Verified = true
	}
	if req.Suspicious != nil {
		user.Suspicious = *req.Suspicious
	}
	if req.Role != nil {
		if !model.ValidRole(*req.Role) {
			return nil, apperr.BadRequest("Invalid role")
		}
		// Managers may only toggle between regular and cashier; higher roles
		// are granted by superusers.
		if model.RoleAtLeast(*req.Role, model.RoleManager) && callerRole != model.RoleSuperuser {
			return nil, apperr.Forbidden("Only superusers may grant manager or superuser roles")
		}
		if *req.Role == model.RoleCashier {
			user.Suspicious = false
		}
		user.Role = *req.Role
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return s.toResponse(user, nil), nil
}

func (s *userService) UpdateMe(ctx context.Context, id string, req UpdateMeRequest, avatarURL *string) (*UserResponse, error) {
	if req.Name == nil && req.Email == nil && req.Birthday == nil && avatarURL == nil {
		return nil, apperr.BadRequest("No fields to update")
	}

	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if len(*req.Name) < 1 || len(*req.Name) > 50 {
			return nil, apperr.BadRequest("Name must be 1-50 characters long")
		}
		user.Name = *req.Name
	}
	if req.Email != nil {
		if !emailRe.MatchString(*req.Email) {
			return nil, apperr.BadRequest("Email must be a valid @mail.utoronto.ca address")
		}
		user.Email = *req.Email
	}
	if req.Birthday != nil {
		if !birthdayRe.MatchString(*req.Birthday) {
			return nil, apperr.BadRequest("Birthday must be formatted YYYY-MM-DD")
		}
		if _, err := time.Parse("2006-01-02", *req.Birthday); err != nil {
			return nil, apperr.BadRequest("Birthday is not a valid date")
		}
		user.Birthday = req.Birthday
	}
	if avatarURL != nil {
		user.AvatarURL = avatarURL
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	promos, err := s.availablePromotions(ctx, user.ID.String())
	if err != nil {
		return nil, err
	}
	return s.toResponse(user, promos), nil
}

func (s *userService) UpdatePassword(ctx context.Context, id string, req UpdatePasswordRequest) error {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if user.PasswordHash == nil ||
		bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Old)) != nil {
		return apperr.Forbidden("Incorrect current password")
	}
	if msg := validatePassword(req.New); msg != "" {
		return apperr.BadRequest(msg)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.New), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	hashStr := string(hash)
	user.PasswordHash = &hashStr
	return s.userRepo.Update(ctx, user)
}

func (s *userService) availablePromotions(ctx context.Context, userID string) ([]PromotionResponse, error) {
	promos, _, err := s.promoRepo.ListAvailable(ctx, userID, model.PromotionOnetime, time.Now(), 0, availablePromotionCap)
	if err != nil {
		return nil, err
	}
	res := make([]PromotionResponse, 0, len(promos))
	for i := range promos {
		res = append(res, toPromotionResponse(&promos[i]))
	}
	return res, nil
}

func (s *userService) toResponse(user *model.User, promos []PromotionResponse) *UserResponse {
	if promos == nil {
		promos = []PromotionResponse{}
	}
	var lastLogin *string
	if user.LastLogin != nil {
		formatted := user.LastLogin.UTC().Format(time.RFC3339)
		lastLogin = &formatted
	}
	return &UserResponse{
		ID:         user.ID,
		Utorid:     user.Utorid,
		Name:       user.Name,
		Email:      user.Email,
		Birthday:   user.Birthday,
		Role:       user.Role,
		Points:     user.Points,
		CreatedAt:  user.CreatedAt.UTC().Format(time.RFC3339),
		LastLogin:  lastLogin,
		Verified:   user.Verified,
		Suspicious: user.Suspicious,
		AvatarURL:  user.AvatarURL,
		Promotions: promos,
	}
}

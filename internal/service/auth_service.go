package service

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"campuspoints/internal/middleware"
	"campuspoints/internal/model"
	"campuspoints/internal/repository"
	"campuspoints/pkg/apperr"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	tokenTTL       = 24 * time.Hour
	resetTTL       = time.Hour
	activationTTL  = 7 * 24 * time.Hour
	throttleWindow = 60 * time.Second
)

var (
	upperRe   = regexp.MustCompile(`[A-Z]`)
	lowerRe   = regexp.MustCompile(`[a-z]`)
	digitRe   = regexp.MustCompile(`[0-9]`)
	specialRe = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// DTOs for Request validation
type LoginRequest struct {
	Utorid   string `json:"utorid" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

type RequestResetRequest struct {
	Utorid string `json:"utorid" binding:"required"`
}

type ResetTokenResponse struct {
	ExpiresAt  string `json:"expiresAt"`
	ResetToken string `json:"resetToken"`
}

type CompleteResetRequest struct {
	Utorid   string `json:"utorid" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthService defines the interface for authentication and the password-reset
// lifecycle.
type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	RequestReset(ctx context.Context, utorid, clientIP string) (*ResetTokenResponse, error)
	CompleteReset(ctx context.Context, token string, req CompleteResetRequest) error
}

type authService struct {
	userRepo  repository.UserRepository
	resetRepo repository.ResetRepository
}

// NewAuthService returns a new instance of AuthService
func NewAuthService(userRepo repository.UserRepository, resetRepo repository.ResetRepository) AuthService {
	return &authService{userRepo: userRepo, resetRepo: resetRepo}
}

func (s *authService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.userRepo.GetByUtorid(ctx, req.Utorid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Forbidden("No such user")
		}
		return nil, err
	}

	if user.PasswordHash == nil {
		return nil, apperr.Unauthorized("Account not activated")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperr.Unauthorized("Incorrect password")
	}

	expiresAt := time.Now().Add(tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"exp":  expiresAt.Unix(),
	})

	signed, err := token.SignedString(middleware.GetJWTSecret())
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLogin = &now
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return &TokenResponse{
		Token:     signed,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

func (s *authService) RequestReset(ctx context.Context, utorid, clientIP string) (*ResetTokenResponse, error) {
	allowed, err := s.resetRepo.Throttle(ctx, clientIP, time.Now(), throttleWindow)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.New(http.StatusTooManyRequests, "Too many requests")
	}

	user, err := s.userRepo.GetByUtorid(ctx, utorid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("No such user")
		}
		return nil, err
	}

	reset := &model.PasswordReset{
		Token:     uuid.New().String(),
		Purpose:   model.ResetPurposeReset,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(resetTTL),
	}
	if err := s.resetRepo.Create(ctx, reset); err != nil {
		return nil, err
	}

	return &ResetTokenResponse{
		ExpiresAt:  reset.ExpiresAt.UTC().Format(time.RFC3339),
		ResetToken: reset.Token,
	}, nil
}

func (s *authService) CompleteReset(ctx context.Context, token string, req CompleteResetRequest) error {
	reset, err := s.resetRepo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Reset token not found")
		}
		return err
	}

	if reset.ConsumedAt != nil || time.Now().After(reset.ExpiresAt) {
		return apperr.Gone("Reset token expired")
	}
	if reset.User == nil || reset.User.Utorid != req.Utorid {
		return apperr.Unauthorized("Token does not belong to this utorid")
	}
	if msg := validatePassword(req.Password); msg != "" {
		return apperr.BadRequest(msg)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	hashStr := string(hash)
	reset.User.PasswordHash = &hashStr
	if err := s.userRepo.Update(ctx, reset.User); err != nil {
		return err
	}

	return s.resetRepo.Consume(ctx, reset, time.Now())
}

// validatePassword enforces the password policy: 8-20 chars with at least one
// uppercase, lowercase, digit, and special character. Empty return means ok.
func validatePassword(password string) string {
	if len(password) < 8 || len(password) > 20 {
		return "Password must be 8-20 characters long"
	}
	if !upperRe.MatchString(password) || !lowerRe.MatchString(password) ||
		!digitRe.MatchString(password) || !specialRe.MatchString(password) {
		return "Password must contain an uppercase letter, a lowercase letter, a number, and a special character"
	}
	return ""
}

package service

import (
	"fmt"
	"testing"
	"time"

	"campuspoints/internal/database"
	"campuspoints/internal/model"
	"campuspoints/internal/repository"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupDB opens a per-test in-memory database to avoid cross-test
// interference and runs the full schema migration.
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

type fixture struct {
	db *gorm.DB

	userRepo  repository.UserRepository
	txRepo    repository.TransactionRepository
	promoRepo repository.PromotionRepository
	eventRepo repository.EventRepository
	resetRepo repository.ResetRepository

	auth   AuthService
	users  UserService
	txs    TransactionService
	promos PromotionService
	events EventService
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := setupDB(t)

	userRepo := repository.NewUserRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	promoRepo := repository.NewPromotionRepository(db)
	eventRepo := repository.NewEventRepository(db)
	resetRepo := repository.NewResetRepository(db)
	txManager := repository.NewTransactionManager(db)

	return &fixture{
		db:        db,
		userRepo:  userRepo,
		txRepo:    txRepo,
		promoRepo: promoRepo,
		eventRepo: eventRepo,
		resetRepo: resetRepo,
		auth:      NewAuthService(userRepo, resetRepo),
		users:     NewUserService(userRepo, resetRepo, promoRepo),
		txs:       NewTransactionService(txRepo, userRepo, promoRepo, txManager),
		promos:    NewPromotionService(promoRepo, txRepo, userRepo),
		events:    NewEventService(eventRepo, userRepo, txRepo, txManager),
	}
}

// seedUser inserts a member directly, filling in the fields tests rarely
// care about.
func (f *fixture) seedUser(t *testing.T, utorid, role string, points int, verified bool) *model.User {
	t.Helper()
	user := &model.User{
		Utorid:   utorid,
		Name:     utorid,
		Email:    utorid + "@mail.utoronto.ca",
		Role:     role,
		Points:   points,
		Verified: verified,
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

// seedActivated is seedUser plus a bcrypt hash of password.
func (f *fixture) seedActivated(t *testing.T, utorid, role, password string) *model.User {
	t.Helper()
	user := f.seedUser(t, utorid, role, 0, true)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	hashStr := string(hash)
	user.PasswordHash = &hashStr
	require.NoError(t, f.db.Save(user).Error)
	return user
}

func (f *fixture) balance(t *testing.T, userID string) int {
	t.Helper()
	var user model.User
	require.NoError(t, f.db.First(&user, "id = ?", userID).Error)
	return user.Points
}

// seedPromotion inserts a published promotion active for the next hour.
func (f *fixture) seedPromotion(t *testing.T, name, promoType string, rate *float64, points *int) *model.Promotion {
	t.Helper()
	promo := &model.Promotion{
		Name:        name,
		Description: name,
		Type:        promoType,
		StartTime:   time.Now().Add(-time.Hour),
		EndTime:     time.Now().Add(time.Hour),
		Rate:        rate,
		Points:      points,
		Published:   true,
	}
	require.NoError(t, f.db.Create(promo).Error)
	return promo
}

// seedEvent inserts an event running for the next hour with the given pool.
func (f *fixture) seedEvent(t *testing.T, name string, capacity *int, points int, published bool) *model.Event {
	t.Helper()
	event := &model.Event{
		Name:         name,
		Description:  name,
		Location:     "BA 2250",
		StartTime:    time.Now().Add(-time.Hour),
		EndTime:      time.Now().Add(time.Hour),
		Capacity:     capacity,
		PointsTotal:  points,
		PointsRemain: points,
		Published:    published,
	}
	require.NoError(t, f.db.Create(event).Error)
	return event
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }
func boolPtr(v bool) *bool        { return &v }

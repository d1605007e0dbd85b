package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campuspoints/internal/database"
	"campuspoints/internal/middleware"
	"campuspoints/internal/model"
	"campuspoints/internal/repository"
	"campuspoints/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testApp struct {
	db     *gorm.DB
	router *gin.Engine
}

// setupApp wires the full stack against a per-test in-memory database.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	userRepo := repository.NewUserRepository(db)
	txRepo := repository.NewTransactionRepository(db)
	promoRepo := repository.NewPromotionRepository(db)
	eventRepo := repository.NewEventRepository(db)
	resetRepo := repository.NewResetRepository(db)
	txManager := repository.NewTransactionManager(db)

	authService := service.NewAuthService(userRepo, resetRepo)
	userService := service.NewUserService(userRepo, resetRepo, promoRepo)
	txService := service.NewTransactionService(txRepo, userRepo, promoRepo, txManager)
	promoService := service.NewPromotionService(promoRepo, txRepo, userRepo)
	eventService := service.NewEventService(eventRepo, userRepo, txRepo, txManager)

	router := gin.New()
	NewAuthHandler(authService).RegisterRoutes(router.Group(""))
	NewUserHandler(userService, txService).RegisterRoutes(router.Group(""))
	NewTransactionHandler(txService).RegisterRoutes(router.Group(""))
	NewPromotionHandler(promoService).RegisterRoutes(router.Group(""))
	NewEventHandler(eventService).RegisterRoutes(router.Group(""))

	return &testApp{db: db, router: router}
}

func (a *testApp) seedUser(t *testing.T, utorid, role string, points int, verified bool) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("GoodPass1!"), bcrypt.MinCost)
	require.NoError(t, err)
	hashStr := string(hash)
	user := &model.User{
		Utorid:       utorid,
		Name:         utorid,
		Email:        utorid + "@mail.utoronto.ca",
		PasswordHash: &hashStr,
		Role:         role,
		Points:       points,
		Verified:     verified,
	}
	require.NoError(t, a.db.Create(user).Error)
	return user
}

func tokenFor(t *testing.T, user *model.User) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(middleware.GetJWTSecret())
	require.NoError(t, err)
	return signed
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func TestLoginEndpoint(t *testing.T) {
	app := setupApp(t)
	app.seedUser(t, "clive123", model.RoleRegular, 0, true)

	w := app.do(t, "POST", "/auth/tokens", "", gin.H{"utorid": "clive123", "password": "GoodPass1!"})
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotEmpty(t, res.Token)

	w = app.do(t, "POST", "/auth/tokens", "", gin.H{"utorid": "clive123", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(t, "POST", "/auth/tokens", "", gin.H{"utorid": "clive123"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterAndActivateEndpoints(t *testing.T) {
	app := setupApp(t)
	cashier := app.seedUser(t, "cashier1", model.RoleCashier, 0, true)
	regular := app.seedUser(t, "student1", model.RoleRegular, 0, true)

	// registration needs cashier clearance
	w := app.do(t, "POST", "/users", tokenFor(t, regular), gin.H{
		"utorid": "newkid01", "name": "New Kid", "email": "new.kid@mail.utoronto.ca",
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = app.do(t, "POST", "/users", tokenFor(t, cashier), gin.H{
		"utorid": "newkid01", "name": "New Kid", "email": "new.kid@mail.utoronto.ca",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ResetToken string `json:"resetToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ResetToken)

	w = app.do(t, "POST", "/auth/resets/"+created.ResetToken, "", gin.H{
		"utorid": "newkid01", "password": "FreshPass1!",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, "POST", "/auth/tokens", "", gin.H{"utorid": "newkid01", "password": "FreshPass1!"})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestUsersMeDispatch(t *testing.T) {
	app := setupApp(t)
	me := app.seedUser(t, "student1", model.RoleRegular, 25, true)
	other := app.seedUser(t, "student2", model.RoleRegular, 0, true)
	cashier := app.seedUser(t, "cashier1", model.RoleCashier, 0, true)
	manager := app.seedUser(t, "manager1", model.RoleManager, 0, true)

	// own record through the "me" alias
	w := app.do(t, "GET", "/users/me", tokenFor(t, me), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var full map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &full))
	require.Equal(t, "student1", full["utorid"])
	require.Equal(t, float64(25), full["points"])

	// regulars cannot read other members
	w = app.do(t, "GET", "/users/"+other.ID.String(), tokenFor(t, me), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	// cashiers get the reduced projection
	w = app.do(t, "GET", "/users/"+me.ID.String(), tokenFor(t, cashier), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reduced map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reduced))
	require.Equal(t, "student1", reduced["utorid"])
	require.NotContains(t, reduced, "email")
	require.NotContains(t, reduced, "role")

	// managers get the full record
	w = app.do(t, "GET", "/users/"+me.ID.String(), tokenFor(t, manager), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &full))
	require.Equal(t, "student1@mail.utoronto.ca", full["email"])

	// self-update through "me"
	w = app.do(t, "PATCH", "/users/me", tokenFor(t, me), gin.H{"name": "Renamed"})
	require.Equal(t, http.StatusOK, w.Code)

	// admin update of another member is manager-gated
	w = app.do(t, "PATCH", "/users/"+other.ID.String(), tokenFor(t, me), gin.H{"verified": true})
	require.Equal(t, http.StatusForbidden, w.Code)
	w = app.do(t, "PATCH", "/users/"+other.ID.String(), tokenFor(t, manager), gin.H{"verified": true})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestUserListEndpoint(t *testing.T) {
	app := setupApp(t)
	manager := app.seedUser(t, "manager1", model.RoleManager, 0, true)
	cashier := app.seedUser(t, "cashier1", model.RoleCashier, 0, true)
	app.seedUser(t, "student1", model.RoleRegular, 0, true)

	w := app.do(t, "GET", "/users", tokenFor(t, cashier), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = app.do(t, "GET", "/users?role=regular", tokenFor(t, manager), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count   int64             `json:"count"`
		Results []json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, int64(1), list.Count)
	require.Len(t, list.Results, 1)
}

func TestTransactionEndpoints(t *testing.T) {
	app := setupApp(t)
	cashier := app.seedUser(t, "cashier1", model.RoleCashier, 0, true)
	manager := app.seedUser(t, "manager1", model.RoleManager, 0, true)
	buyer := app.seedUser(t, "buyer001", model.RoleRegular, 0, true)

	// regulars cannot record purchases
	w := app.do(t, "POST", "/transactions", tokenFor(t, buyer), gin.H{
		"type": "purchase", "utorid": "buyer001", "spent": 10,
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = app.do(t, "POST", "/transactions", tokenFor(t, cashier), gin.H{
		"type": "purchase", "utorid": "buyer001", "spent": 10,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var purchase struct {
		ID     string `json:"id"`
		Amount int    `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &purchase))
	require.Equal(t, 40, purchase.Amount)

	// adjustments are manager-only even though the route is cashier-gated
	w = app.do(t, "POST", "/transactions", tokenFor(t, cashier), gin.H{
		"type": "adjustment", "utorid": "buyer001", "amount": -5, "relatedId": purchase.ID,
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	w = app.do(t, "POST", "/transactions", tokenFor(t, manager), gin.H{
		"type": "adjustment", "utorid": "buyer001", "amount": -5, "relatedId": purchase.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, "POST", "/transactions", tokenFor(t, cashier), gin.H{
		"type": "transfer", "utorid": "buyer001", "amount": 5,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// reading the ledger is manager-gated
	w = app.do(t, "GET", "/transactions", tokenFor(t, cashier), nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w = app.do(t, "GET", "/transactions?type=purchase", tokenFor(t, manager), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int64 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, int64(1), list.Count)
}

func TestRedemptionEndpoints(t *testing.T) {
	app := setupApp(t)
	owner := app.seedUser(t, "redeemer", model.RoleRegular, 100, true)
	cashier := app.seedUser(t, "cashier1", model.RoleCashier, 0, true)

	w := app.do(t, "POST", "/users/me/transactions", tokenFor(t, owner), gin.H{
		"type": "redemption", "amount": 60,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var redemption struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &redemption))

	// the QR code is only served to the owner
	w = app.do(t, "GET", "/users/me/transactions/"+redemption.ID+"/qrcode", tokenFor(t, owner), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))

	// processing requires {"processed": true}
	w = app.do(t, "PATCH", "/transactions/"+redemption.ID+"/processed", tokenFor(t, cashier), gin.H{
		"processed": false,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, "PATCH", "/transactions/"+redemption.ID+"/processed", tokenFor(t, cashier), gin.H{
		"processed": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var user model.User
	require.NoError(t, app.db.First(&user, "id = ?", owner.ID).Error)
	require.Equal(t, 40, user.Points)
}

func TestTransferEndpoint(t *testing.T) {
	app := setupApp(t)
	sender := app.seedUser(t, "sender01", model.RoleRegular, 50, true)
	recipient := app.seedUser(t, "receiver", model.RoleRegular, 0, true)

	w := app.do(t, "POST", "/users/"+recipient.ID.String()+"/transactions", tokenFor(t, sender), gin.H{
		"type": "transfer", "amount": 20, "remark": "lunch",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var a, b model.User
	require.NoError(t, app.db.First(&a, "id = ?", sender.ID).Error)
	require.NoError(t, app.db.First(&b, "id = ?", recipient.ID).Error)
	require.Equal(t, 30, a.Points)
	require.Equal(t, 20, b.Points)

	// a redemption posted at another user's path is rejected
	w = app.do(t, "POST", "/users/"+recipient.ID.String()+"/transactions", tokenFor(t, sender), gin.H{
		"type": "redemption", "amount": 5,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuspiciousEndpoint(t *testing.T) {
	app := setupApp(t)
	cashier := app.seedUser(t, "cashier1", model.RoleCashier, 0, true)
	manager := app.seedUser(t, "manager1", model.RoleManager, 0, true)
	buyer := app.seedUser(t, "buyer001", model.RoleRegular, 0, true)

	w := app.do(t, "POST", "/transactions", tokenFor(t, cashier), gin.H{
		"type": "purchase", "utorid": "buyer001", "spent": 10,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var purchase struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &purchase))

	w = app.do(t, "PATCH", "/transactions/"+purchase.ID+"/suspicious", tokenFor(t, cashier), gin.H{
		"suspicious": true,
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = app.do(t, "PATCH", "/transactions/"+purchase.ID+"/suspicious", tokenFor(t, manager), gin.H{
		"suspicious": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	var user model.User
	require.NoError(t, app.db.First(&user, "id = ?", buyer.ID).Error)
	require.Equal(t, 0, user.Points)
}

func TestEventRSVPEndpoint(t *testing.T) {
	app := setupApp(t)
	guest := app.seedUser(t, "guest001", model.RoleRegular, 0, true)

	event := &model.Event{
		Name:         "Orientation",
		Description:  "Welcome session",
		Location:     "BA 1130",
		StartTime:    time.Now().Add(time.Hour),
		EndTime:      time.Now().Add(2 * time.Hour),
		PointsTotal:  100,
		PointsRemain: 100,
		Published:    true,
	}
	require.NoError(t, app.db.Create(event).Error)

	w := app.do(t, "POST", "/events/"+event.ID.String()+"/guests/me", tokenFor(t, guest), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, "POST", "/events/"+event.ID.String()+"/guests/me", tokenFor(t, guest), nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = app.do(t, "DELETE", "/events/"+event.ID.String()+"/guests/me", tokenFor(t, guest), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestErrorShape(t *testing.T) {
	app := setupApp(t)
	manager := app.seedUser(t, "manager1", model.RoleManager, 0, true)

	w := app.do(t, "GET", "/transactions/does-not-exist", tokenFor(t, manager), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "Transaction not found", body["message"])
}

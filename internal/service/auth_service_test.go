package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"campuspoints/internal/model"

	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	user := f.seedActivated(t, "clive123", model.RoleRegular, "GoodPass1!")

	res, err := f.auth.Login(ctx, LoginRequest{Utorid: "clive123", Password: "GoodPass1!"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)

	expires, err := time.Parse(time.RFC3339, res.ExpiresAt)
	require.NoError(t, err)
	require.True(t, expires.After(time.Now()))

	var saved model.User
	require.NoError(t, f.db.First(&saved, "id = ?", user.ID).Error)
	require.NotNil(t, saved.LastLogin)
}

func TestLoginFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.seedActivated(t, "clive123", model.RoleRegular, "GoodPass1!")
	f.seedUser(t, "pending1", model.RoleRegular, 0, false)

	_, err := f.auth.Login(ctx, LoginRequest{Utorid: "nobody99", Password: "GoodPass1!"})
	requireStatus(t, err, http.StatusForbidden)

	_, err = f.auth.Login(ctx, LoginRequest{Utorid: "clive123", Password: "WrongPass1!"})
	requireStatus(t, err, http.StatusUnauthorized)

	// registered but never activated
	_, err = f.auth.Login(ctx, LoginRequest{Utorid: "pending1", Password: "GoodPass1!"})
	requireStatus(t, err, http.StatusUnauthorized)
}

func TestRequestResetThrottledPerIP(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.seedActivated(t, "clive123", model.RoleRegular, "GoodPass1!")

	res, err := f.auth.RequestReset(ctx, "clive123", "10.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, res.ResetToken)

	// same IP inside the window
	_, err = f.auth.RequestReset(ctx, "clive123", "10.0.0.1")
	requireStatus(t, err, http.StatusTooManyRequests)

	// a different IP is not affected
	_, err = f.auth.RequestReset(ctx, "clive123", "10.0.0.2")
	require.NoError(t, err)
}

func TestRequestResetUnknownUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.auth.RequestReset(ctx, "nobody99", "10.0.0.1")
	requireStatus(t, err, http.StatusNotFound)
}

func TestRequestResetExpiresOlderTokens(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.seedActivated(t, "clive123", model.RoleRegular, "GoodPass1!")

	first, err := f.auth.RequestReset(ctx, "clive123", "10.0.0.1")
	require.NoError(t, err)
	second, err := f.auth.RequestReset(ctx, "clive123", "10.0.0.2")
	require.NoError(t, err)

	// the older token is dead as soon as a new one is issued
	err = f.auth.CompleteReset(ctx, first.ResetToken, CompleteResetRequest{
		Utorid: "clive123", Password: "NewPass99#",
	})
	requireStatus(t, err, http.StatusGone)

	err = f.auth.CompleteReset(ctx, second.ResetToken, CompleteResetRequest{
		Utorid: "clive123", Password: "NewPass99#",
	})
	require.NoError(t, err)
}

func TestCompleteReset(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.seedActivated(t, "clive123", model.RoleRegular, "GoodPass1!")

	res, err := f.auth.RequestReset(ctx, "clive123", "10.0.0.1")
	require.NoError(t, err)

	// token bound to a different utorid
	err = f.auth.CompleteReset(ctx, res.ResetToken, CompleteResetRequest{
		Utorid: "someone1", Password: "NewPass99#",
	})
	requireStatus(t, err, http.StatusUnauthorized)

	// password policy
	err = f.auth.CompleteReset(ctx, res.ResetToken, CompleteResetRequest{
		Utorid: "clive123", Password: "weak",
	})
	requireStatus(t, err, http.StatusBadRequest)
	err = f.auth.CompleteReset(ctx, res.ResetToken, CompleteResetRequest{
		Utorid: "clive123", Password: "nouppercase9#",
	})
	requireStatus(t, err, http.StatusBadRequest)

	err = f.auth.CompleteReset(ctx, res.ResetToken, CompleteResetRequest{
		Utorid: "clive123", Password: "NewPass99#",
	})
	require.NoError(t, err)

	// the new password works, the token is spent
	_, err = f.auth.Login(ctx, LoginRequest{Utorid: "clive123", Password: "NewPass99#"})
	require.NoError(t, err)

	err = f.auth.CompleteReset(ctx, res.ResetToken, CompleteResetRequest{
		Utorid: "clive123", Password: "OtherPass1$",
	})
	requireStatus(t, err, http.StatusGone)
}

func TestCompleteResetUnknownToken(t *testing.T) {
	f := setup(t)
	err := f.auth.CompleteReset(context.Background(), "not-a-token", CompleteResetRequest{
		Utorid: "clive123", Password: "NewPass99#",
	})
	requireStatus(t, err, http.StatusNotFound)
}

func TestActivationFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.users.Register(ctx, CreateUserRequest{
		Utorid: "newkid01",
		Name:   "New Kid",
		Email:  "new.kid@mail.utoronto.ca",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ResetToken)

	// cannot log in before activating
	_, err = f.auth.Login(ctx, LoginRequest{Utorid: "newkid01", Password: "GoodPass1!"})
	requireStatus(t, err, http.StatusUnauthorized)

	err = f.auth.CompleteReset(ctx, created.ResetToken, CompleteResetRequest{
		Utorid: "newkid01", Password: "GoodPass1!",
	})
	require.NoError(t, err)

	_, err = f.auth.Login(ctx, LoginRequest{Utorid: "newkid01", Password: "GoodPass1!"})
	require.NoError(t, err)
}

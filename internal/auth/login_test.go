package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenohealth/salus/internal/accounts"
)

func seedAccount(t *testing.T, repo accounts.Repository, password string, expired bool) *accounts.User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	u, _, err := repo.CreateUserWithPatient(context.Background(),
		accounts.NewUser{
			Username:          "12345678Z",
			Name:              "Ana Pérez",
			Email:             "ana@example.com",
			Phone:             "600111222",
			HashedPassword:    hash,
			IsPasswordExpired: expired,
		},
		accounts.NewPatient{MRN: "MRN-001", MRNSystem: "endotools", Name: "Ana Pérez"},
	)
	require.NoError(t, err)
	return u
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	seedAccount(t, repo, "correct-horse", false)
	svc := NewLoginService(repo, nil)

	res, err := svc.Login(context.Background(), "nobody", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, StateInvalidCredentials, res.State)
	assert.Nil(t, res.User)

	res, err = svc.Login(context.Background(), "12345678Z", "wrong-password")
	require.NoError(t, err)
	assert.Equal(t, StateInvalidCredentials, res.State)
}

func TestLoginAuthenticated(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	u := seedAccount(t, repo, "correct-horse", false)
	svc := NewLoginService(repo, nil)

	res, err := svc.Login(context.Background(), "12345678Z", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, res.State)
	require.NotNil(t, res.User)
	assert.Equal(t, u.ID, res.User.ID)
}

func TestLoginOneTimePasswordLifecycle(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	seedAccount(t, repo, "otp-17051980", true)
	svc := NewLoginService(repo, nil)

	// First use of the one-time password forces a reset and burns it.
	res, err := svc.Login(context.Background(), "12345678Z", "otp-17051980")
	require.NoError(t, err)
	assert.Equal(t, StateForcedReset, res.State)
	require.NotNil(t, res.User)

	// The same credentials now read as locked.
	res, err = svc.Login(context.Background(), "12345678Z", "otp-17051980")
	require.NoError(t, err)
	assert.Equal(t, StateLocked, res.State)
}

func TestLoginLockedNeverBurnsAgain(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	u := seedAccount(t, repo, "otp-17051980", true)
	require.NoError(t, repo.MarkOTPUsed(context.Background(), u.ID))
	svc := NewLoginService(repo, nil)

	res, err := svc.Login(context.Background(), "12345678Z", "otp-17051980")
	require.NoError(t, err)
	assert.Equal(t, StateLocked, res.State)
}

func TestLoginAfterSelfServiceChange(t *testing.T) {
	repo := accounts.NewInMemoryRepository()
	u := seedAccount(t, repo, "otp-17051980", true)
	svc := NewLoginService(repo, nil)

	res, err := svc.Login(context.Background(), "12345678Z", "otp-17051980")
	require.NoError(t, err)
	require.Equal(t, StateForcedReset, res.State)

	hash, err := HashPassword("my-new-Password1")
	require.NoError(t, err)
	require.NoError(t, repo.UpdatePassword(context.Background(), u.ID, hash))

	res, err = svc.Login(context.Background(), "12345678Z", "my-new-Password1")
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, res.State)
}

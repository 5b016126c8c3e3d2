package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/fleetrent/internal/domain"
	"github.com/yourorg/fleetrent/internal/security/auth"
)

func newAuthFixture(t *testing.T) (*AuthService, *fakeUserRepo) {
	t.Helper()
	users := newFakeUserRepo()
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	tokens := auth.NewTokenManager("test-secret", "fleetrent-test")
	return NewAuthService(users, tokens, time.Hour, logger), users
}

func TestRegister(t *testing.T) {
	svc, _ := newAuthFixture(t)

	result, err := svc.Register(context.Background(), RegisterParams{
		FirstName: "Ana",
		LastName:  "Silva",
		Email:     "Ana.Silva@Example.com",
		Password:  "correct-horse",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RoleClient, result.User.Role, "self-registration is always client")
	assert.Equal(t, "ana.silva@example.com", result.User.Email)
	assert.NotEmpty(t, result.Token)
	assert.NotEqual(t, "correct-horse", result.User.PasswordHash)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		params RegisterParams
	}{
		{"missing first name", RegisterParams{LastName: "Silva", Email: "a@b.com", Password: "longenough"}},
		{"bad email", RegisterParams{FirstName: "Ana", LastName: "Silva", Email: "not-an-email", Password: "longenough"}},
		{"short password", RegisterParams{FirstName: "Ana", LastName: "Silva", Email: "a@b.com", Password: "short"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.params)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()
	params := RegisterParams{FirstName: "Ana", LastName: "Silva", Email: "a@b.com", Password: "longenough"}

	_, err := svc.Register(ctx, params)
	require.NoError(t, err)

	_, err = svc.Register(ctx, params)
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
}

func TestLogin(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterParams{
		FirstName: "Ana", LastName: "Silva", Email: "a@b.com", Password: "correct-horse",
	})
	require.NoError(t, err)

	result, err := svc.Login(ctx, "a@b.com", "correct-horse")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)

	tokens := auth.NewTokenManager("test-secret", "fleetrent-test")
	claims, err := tokens.ValidateToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, claims.UserID)
	assert.Equal(t, "a@b.com", claims.Email)
}

func TestLoginFailures(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterParams{
		FirstName: "Ana", LastName: "Silva", Email: "a@b.com", Password: "correct-horse",
	})
	require.NoError(t, err)

	// Unknown email and wrong password look identical to the caller.
	_, err = svc.Login(ctx, "nobody@b.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "a@b.com", "wrong-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/fleetrent/internal/domain"
	"github.com/yourorg/fleetrent/internal/security/auth"
)

// ErrInvalidCredentials is returned on login failure. The message is the
// same for an unknown email and a wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// AuthService handles registration and login.
type AuthService struct {
	users    domain.UserRepository
	tokens   *auth.TokenManager
	tokenTTL time.Duration
	logger   *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(users domain.UserRepository, tokens *auth.TokenManager, tokenTTL time.Duration, logger *slog.Logger) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	return &AuthService{
		users:    users,
		tokens:   tokens,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// AuthResult is a successful registration or login.
type AuthResult struct {
	User      *domain.User
	Token     string
	ExpiresIn time.Duration
}

// RegisterParams captures a signup request.
type RegisterParams struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Register creates a new client account and returns a token for it.
// Self-registration always yields the client role; staff accounts are
// provisioned out of band.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	firstName := strings.TrimSpace(params.FirstName)
	lastName := strings.TrimSpace(params.LastName)
	email := strings.ToLower(strings.TrimSpace(params.Email))

	if firstName == "" {
		return nil, domain.NewValidationError("first_name", "first name is required")
	}
	if lastName == "" {
		return nil, domain.NewValidationError("last_name", "last name is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.NewValidationError("email", "a valid email is required")
	}
	if len(params.Password) < 8 {
		return nil, domain.NewValidationError("password", "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.NewStoreError(err)
	}

	user := &domain.User{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleClient,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if domain.IsConflict(err) {
			return nil, domain.NewConflictError("email already registered")
		}
		return nil, err
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email, s.tokenTTL)
	if err != nil {
		return nil, domain.NewStoreError(err)
	}

	s.logger.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return &AuthResult{User: user, Token: token, ExpiresIn: s.tokenTTL}, nil
}

// Login verifies credentials and returns a token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("login failed", slog.String("email", email))
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email, s.tokenTTL)
	if err != nil {
		return nil, domain.NewStoreError(err)
	}

	s.logger.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return &AuthResult{User: user, Token: token, ExpiresIn: s.tokenTTL}, nil
}

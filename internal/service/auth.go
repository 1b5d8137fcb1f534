// Package service holds the business rules of the analytics application.
//
// Handlers translate HTTP into service calls, services validate input and
// orchestrate repositories, and repositories talk to the store:
//
//	AuthHandler      → AuthService      → UserRepository
//	DatasetHandler   → IngestService    → DatasetRepository, blob.Store
//	HouseholdHandler → HouseholdService → HouseholdRepository
//
// Services never see an *http.Request and never build SQL, which keeps them
// testable with small in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/retail-analytics/internal/apperror"
	"github.com/sakif/retail-analytics/internal/auth"
	"github.com/sakif/retail-analytics/internal/model"
	"github.com/sakif/retail-analytics/internal/repository"
)

const (
	maxUsernameLength = 64
	maxEmailLength    = 255
)

// AuthService handles registration, login and session validation.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// RegisterInput is the data collected by the registration form.
type RegisterInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// AuthResult bundles the user record and the issued token so the handler
// can set the cookie and respond in one step.
type AuthResult struct {
	User    *model.User
	Session auth.Session
	Token   string
}

// Register creates a login. Every field is required; the username and
// email are trimmed, the password is kept as typed and stored only as a
// bcrypt hash. A taken username is apperror.ErrConflict and changes nothing.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	switch {
	case username == "":
		return nil, apperror.ValidationFailed("username", "username is required")
	case utf8.RuneCountInString(username) > maxUsernameLength:
		return nil, apperror.ValidationFailed("username", fmt.Sprintf("username must be %d characters or fewer", maxUsernameLength))
	case strings.TrimSpace(in.Password) == "":
		return nil, apperror.ValidationFailed("password", "password is required")
	case len(in.Password) > auth.MaxPasswordBytes:
		return nil, apperror.ValidationFailed("password", fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	case email == "":
		return nil, apperror.ValidationFailed("email", "email is required")
	case len(email) > maxEmailLength || !strings.Contains(email, "@"):
		return nil, apperror.ValidationFailed("email", "email is not valid")
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		Email:        email,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: creating user %q: %w", username, err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login checks the credentials and issues a session token.
//
// An unknown username and a wrong password produce the same
// apperror.ErrUnauthorized so the response does not reveal which
// usernames exist.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperror.ValidationFailed("username", "username and password are required")
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, invalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up %q: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("login rejected", slog.String("username", username))
			return nil, invalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	sess := auth.Session{UserID: user.ID, Username: user.Username}
	token, err := s.tokens.Issue(sess)
	if err != nil {
		return nil, fmt.Errorf("service/auth: issuing token for user %s: %w", user.ID, err)
	}

	s.logger.Info("user logged in", slog.String("userID", user.ID))
	return &AuthResult{User: user, Session: sess, Token: token}, nil
}

func invalidCredentials() error {
	return apperror.Unauthorized("invalid username or password")
}

// GetUserByID returns the user behind a session.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// ValidateToken returns the session encoded in tokenStr.
func (s *AuthService) ValidateToken(tokenStr string) (auth.Session, error) {
	sess, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return auth.Session{}, apperror.Unauthorized(err.Error())
	}
	return sess, nil
}

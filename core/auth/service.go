package auth

import (
	"context"
	"errors"
	"strings"

	"Bt1QMedia/core/apperr"
	"Bt1QMedia/logger"
	"Bt1QMedia/model"
	"Bt1QMedia/repository"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// Service implements registration, login and authorization.
type Service struct {
	users  repository.UserRepository
	tokens *TokenIssuer
}

func NewService(users repository.UserRepository, tokens *TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens}
}

// bcrypt ignores input past 72 bytes and GenerateFromPassword rejects it.
const maxPasswordBytes = 72

// Register creates a regular user.
func (s *Service) Register(ctx context.Context, username, email, password string) (*model.User, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, apperr.BadRequestf("Username, email and password are required")
	}
	return s.create(ctx, username, email, password, false)
}

func (s *Service) create(ctx context.Context, username, email, password string, admin bool) (*model.User, error) {
	if len(password) > maxPasswordBytes {
		return nil, apperr.BadRequestf("Password must be at most %d bytes", maxPasswordBytes)
	}
	existing, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to check username")
	}
	if existing != nil {
		return nil, apperr.Conflictf("Username already exists")
	}
	existing, err = s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to check email")
	}
	if existing != nil {
		return nil, apperr.Conflictf("Email already exists")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to hash password")
	}
	user := &model.User{Username: username, Email: email, PasswordHash: hash, IsAdmin: admin}
	if err := s.users.CreateUser(ctx, user); err != nil {
		// The unique index catches races between the checks above and the insert.
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, apperr.Conflictf("Username or email already exists")
		}
		return nil, apperr.Wrap(err, "failed to create user")
	}
	logger.Info("[Register] user created", logger.Int64("userId", user.ID), logger.String("username", user.Username))
	return user, nil
}

// Login checks the credentials and issues a token. The identifier is tried as a username
// first, then as an email.
func (s *Service) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	if identifier == "" || password == "" {
		return nil, apperr.BadRequestf("Username and password are required")
	}

	user, err := s.users.GetUserByUsername(ctx, identifier)
	if err == nil && user == nil && strings.Contains(identifier, "@") {
		user, err = s.users.GetUserByEmail(ctx, identifier)
	}
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load user")
	}
	if user == nil {
		logger.Warn("[Login] unknown user", logger.String("username", identifier))
		return nil, apperr.Unauthorizedf("Invalid credentials")
	}
	if !VerifyPassword(password, user.PasswordHash) {
		logger.Warn("[Login] password mismatch", logger.String("username", identifier))
		return nil, apperr.Unauthorizedf("Invalid credentials")
	}

	token, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to issue token")
	}
	return &LoginResult{Token: token, UserID: user.ID, Username: user.Username, IsAdmin: user.IsAdmin}, nil
}

// Authorize verifies a bearer token without touching the store.
func (s *Service) Authorize(token string) (int64, error) {
	if token == "" {
		return 0, apperr.Unauthorizedf("Token is missing")
	}
	userID, err := s.tokens.ParseToken(token)
	if err != nil {
		return 0, &apperr.Error{Kind: apperr.Unauthorized, Message: "Invalid or expired token", Err: err}
	}
	return userID, nil
}

// User loads the caller; a token whose user no longer exists is unauthorized.
func (s *Service) User(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(err, "failed to load user")
	}
	if user == nil {
		return nil, apperr.Unauthorizedf("User not found")
	}
	return user, nil
}

// RequireAdmin returns the user if they are an admin.
func (s *Service) RequireAdmin(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, apperr.Forbiddenf("Admin access required")
	}
	return user, nil
}

// EnsureAdmin creates the admin account unless a user with that username exists.
// It reports whether a user was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, email, password string) (bool, error) {
	if username == "" || email == "" || password == "" {
		return false, apperr.BadRequestf("Username, email and password are required")
	}
	existing, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return false, apperr.Wrap(err, "failed to check username")
	}
	if existing != nil {
		if !existing.IsAdmin {
			logger.Warn("[EnsureAdmin] user exists but is not an admin", logger.String("username", username))
		}
		return false, nil
	}
	if _, err := s.create(ctx, username, email, password, true); err != nil {
		return false, err
	}
	return true, nil
}

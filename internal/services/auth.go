package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/chainshopapp/chainshop/internal/db"
	"github.com/chainshopapp/chainshop/internal/logging"
	"github.com/chainshopapp/chainshop/internal/models"
)

// Identity is an authenticated caller. Roles is a set: operations check
// membership, never position.
type Identity struct {
	Email    string
	Forename string
	Surname  string
	Roles    []string
}

func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9_.]+@[a-z]+\.[a-z]{2,}$`)

const (
	minPasswordLength = 8
	tokenLifetime     = time.Hour
)

type userStore interface {
	Create(ctx context.Context, user *models.User, role string) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Delete(ctx context.Context, email string) error
}

// AuthService registers users, verifies credentials, and issues and
// verifies the access tokens the rest of the API consumes.
type AuthService struct {
	users  userStore
	secret []byte
	logger *slog.Logger
}

func NewAuthService(users userStore, secret []byte, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		secret: secret,
		logger: logger,
	}
}

func (s *AuthService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type RegisterInput struct {
	Forename string
	Surname  string
	Email    string
	Password string
}

// Register creates a user account with the given role (customer or courier).
func (s *AuthService) Register(ctx context.Context, input RegisterInput, role string) error {
	if input.Forename == "" {
		return validationError("Field forename is missing.")
	}
	if input.Surname == "" {
		return validationError("Field surname is missing.")
	}
	if input.Email == "" {
		return validationError("Field email is missing.")
	}
	if input.Password == "" {
		return validationError("Field password is missing.")
	}
	if !emailRegex.MatchString(input.Email) {
		return validationError("Invalid email.")
	}
	if len(input.Password) < minPasswordLength {
		return validationError("Invalid password.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:        input.Email,
		Forename:     input.Forename,
		Surname:      input.Surname,
		PasswordHash: string(hash),
	}
	err = s.users.Create(ctx, user, role)
	if errors.Is(err, db.ErrEmailExists) {
		return validationError("Email already exists.")
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	s.loggerFromContext(ctx).Info("user registered", "email", user.Email, "role", role)
	return nil
}

// Login verifies credentials and returns a signed access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" {
		return "", validationError("Field email is missing.")
	}
	if password == "" {
		return "", validationError("Field password is missing.")
	}
	if !emailRegex.MatchString(email) {
		return "", validationError("Invalid email.")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, db.ErrUserNotFound) {
		return "", validationError("Invalid credentials.")
	}
	if err != nil {
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", validationError("Invalid credentials.")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      user.Email,
		"forename": user.Forename,
		"surname":  user.Surname,
		"roles":    user.Roles,
		"iat":      now.Unix(),
		"exp":      now.Add(tokenLifetime).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// DeleteAccount removes the calling user and their role links.
func (s *AuthService) DeleteAccount(ctx context.Context, identity Identity) error {
	err := s.users.Delete(ctx, identity.Email)
	if errors.Is(err, db.ErrUserNotFound) {
		return validationError("Unknown user.")
	}
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.loggerFromContext(ctx).Info("user deleted", "email", identity.Email)
	return nil
}

// VerifyToken parses a bearer token and returns the caller's identity.
// Every parse or claim failure collapses into ErrUnauthorized.
func (s *AuthService) VerifyToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	email, _ := claims["sub"].(string)
	if email == "" {
		return Identity{}, ErrUnauthorized
	}

	identity := Identity{Email: email}
	identity.Forename, _ = claims["forename"].(string)
	identity.Surname, _ = claims["surname"].(string)
	if rawRoles, ok := claims["roles"].([]any); ok {
		for _, raw := range rawRoles {
			if role, ok := raw.(string); ok {
				identity.Roles = append(identity.Roles, role)
			}
		}
	}
	return identity, nil
}

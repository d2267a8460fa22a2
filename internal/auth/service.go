package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/wolfman30/atacado-crm/pkg/logging"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expira_em"`
	User      *User     `json:"usuario"`
}

// Service authenticates employees.
type Service struct {
	users  UserRepository
	tokens *TokenIssuer
	logger *logging.Logger
}

func NewService(users UserRepository, tokens *TokenIssuer, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Login checks the password and issues a token. Unknown users, inactive
// users and wrong passwords all return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Active {
		s.logger.Warn("login attempt for inactive user", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("auth: issue token: %w", err)
	}
	s.logger.Info("employee logged in", "user_id", user.ID, "role", user.Role)
	return &LoginResult{Token: token, ExpiresAt: expires, User: user}, nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if name == "" {
		name = "Administrador"
	}
	if err := s.users.Create(ctx, &User{Name: name, Email: email, Role: RoleAdmin, Active: true, PasswordHash: hash}); err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", "email", normalizeEmail(email))
	return nil
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrInvalidCredentials = errors.New("auth: invalid email or password")
)

// User is an employee account from the usuarios table.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"nome"`
	Email        string    `json:"email"`
	Role         Role      `json:"papel"`
	Active       bool      `json:"ativo"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"criado_em"`
}

// UserRepository looks up employees.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, user *User) error
}

// HashPassword hashes a password with bcrypt's default cost.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hashed), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresUserRepository reads usuarios.
type PostgresUserRepository struct {
	db querier
}

func NewPostgresUserRepository(db querier) *PostgresUserRepository {
	if db == nil {
		panic("auth: pgx pool required")
	}
	return &PostgresUserRepository{db: db}
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id::text, nome, email, papel, ativo, senha_hash, criado_em
		FROM usuarios
		WHERE LOWER(email) = $1
	`
	var u User
	var role string
	err := r.db.QueryRow(ctx, query, normalizeEmail(email)).Scan(
		&u.ID, &u.Name, &u.Email, &role, &u.Active, &u.PasswordHash, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("auth: select user: %w", err)
	}
	u.Role = Role(role)
	return &u, nil
}

func (r *PostgresUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = normalizeEmail(user.Email)
	query := `
		INSERT INTO usuarios (id, nome, email, papel, ativo, senha_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING criado_em
	`
	if err := r.db.QueryRow(ctx, query, user.ID, user.Name, user.Email, string(user.Role), user.Active, user.PasswordHash).Scan(&user.CreatedAt); err != nil {
		return fmt.Errorf("auth: insert user: %w", err)
	}
	return nil
}

// InMemoryUserRepository backs tests and the local simulator.
type InMemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{users: make(map[string]*User)}
}

func (r *InMemoryUserRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[normalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *InMemoryUserRepository) Create(_ context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = normalizeEmail(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *user
	r.users[user.Email] = &clone
	return nil
}

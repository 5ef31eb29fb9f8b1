package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fairlines/authcore/internal/database"
	"github.com/fairlines/authcore/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

const userColumns = `id, email, username, password_hash, active, roles, totp_secret, created_at, updated_at`

func scanUserRow(scanner interface{ Scan(dest ...interface{}) error }) (*models.User, error) {
	var user models.User
	err := scanner.Scan(
		&user.ID, &user.Email, &user.Username, &user.PasswordHash,
		&user.Active, &user.Roles, &user.TOTPSecret,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail looks a user up by normalized email. Emails are stored
// lowercase so the equality match is case-insensitive.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if len(user.Roles) == 0 {
		user.Roles = []string{"player"}
	}

	query := `
		INSERT INTO users (id, email, username, password_hash, active, roles, totp_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Email, user.Username, user.PasswordHash,
		user.Active, user.Roles, user.TOTPSecret,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", database.MapPostgresError(err))
	}

	return user, nil
}

// SetTOTPSecret stores (or clears, with an empty string) the account's
// two-factor secret.
func (r *UserRepository) SetTOTPSecret(ctx context.Context, userID, secret string) error {
	query := `UPDATE users SET totp_secret = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, userID, secret)
	if err != nil {
		return fmt.Errorf("failed to set totp secret: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetActive flips the soft-deactivation flag. Users are never deleted.
func (r *UserRepository) SetActive(ctx context.Context, userID string, active bool) error {
	query := `UPDATE users SET active = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, userID, active)
	if err != nil {
		return fmt.Errorf("failed to set active flag: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

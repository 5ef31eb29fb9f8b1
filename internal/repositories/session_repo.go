package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fairlines/authcore/internal/database"
	"github.com/fairlines/authcore/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionRepository is the Postgres-backed session store. Rotation and
// revocation are single conditional statements, so the database
// serializes racing callers per row: a rotate racing a revoke either
// happens before it (and the revoke still lands) or finds the session
// already revoked and fails.
type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

const sessionColumns = `id, user_id, token_hash, prev_token_hash, ip_address, user_agent, remember_me, revoked, created_at, expires_at`

func scanSessionRow(scanner interface{ Scan(dest ...interface{}) error }) (*models.Session, error) {
	var s models.Session
	err := scanner.Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.PrevTokenHash,
		&s.IPAddress, &s.UserAgent, &s.RememberMe, &s.Revoked,
		&s.CreatedAt, &s.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// Create persists a new session and fills in its id and creation time.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	session.ID = uuid.New().String()
	session.CreatedAt = time.Now()

	query := `
		INSERT INTO sessions (id, user_id, token_hash, prev_token_hash, ip_address, user_agent, remember_me, revoked, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		session.ID, session.UserID, session.TokenHash, session.PrevTokenHash,
		session.IPAddress, session.UserAgent, session.RememberMe, session.Revoked,
		session.CreatedAt, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", database.MapPostgresError(err))
	}

	return nil
}

// GetByID returns a session by its id.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	return scanSessionRow(r.pool.QueryRow(ctx, query, id))
}

// FindByTokenHash returns the session holding the given current hash.
func (r *SessionRepository) FindByTokenHash(ctx context.Context, hash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE token_hash = $1`
	return scanSessionRow(r.pool.QueryRow(ctx, query, hash))
}

// FindByPrevTokenHash returns the session whose previous (already
// rotated) hash matches. A hit means the presented token is a stale
// predecessor: a theft signal.
func (r *SessionRepository) FindByPrevTokenHash(ctx context.Context, hash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE prev_token_hash = $1`
	return scanSessionRow(r.pool.QueryRow(ctx, query, hash))
}

// Rotate atomically replaces the session's hash and expiry, keeping the
// old hash for reuse detection. Fails with ErrNotFound when no active,
// unexpired session holds currentHash (including when a concurrent
// revoke got there first).
func (r *SessionRepository) Rotate(ctx context.Context, currentHash, newHash string, newExpiry time.Time) (*models.Session, error) {
	query := `
		UPDATE sessions
		SET token_hash = $2, prev_token_hash = $1, expires_at = $3
		WHERE token_hash = $1 AND revoked = FALSE AND expires_at > NOW()
		RETURNING ` + sessionColumns

	session, err := scanSessionRow(r.pool.QueryRow(ctx, query, currentHash, newHash, newExpiry))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	return session, nil
}

// Revoke marks one session revoked. Returns false when the id is
// unknown; revoking an already revoked session reports true (idempotent).
func (r *SessionRepository) Revoke(ctx context.Context, sessionID string) (bool, error) {
	query := `UPDATE sessions SET revoked = TRUE WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", database.MapPostgresError(err))
	}

	return tag.RowsAffected() > 0, nil
}

// RevokeAllForUser marks every session of the user revoked and reports
// how many were newly revoked.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	query := `UPDATE sessions SET revoked = TRUE WHERE user_id = $1 AND revoked = FALSE`

	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", database.MapPostgresError(err))
	}

	return int(tag.RowsAffected()), nil
}

// ListByUser returns the user's sessions, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		session, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return sessions, nil
}

// DeleteExpired removes sessions past their expiry. Revoked sessions
// are kept until expiry so reuse detection still sees their hashes.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at <= NOW()`

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	return tag.RowsAffected(), nil
}

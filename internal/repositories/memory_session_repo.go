package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/fairlines/authcore/internal/models"
	"github.com/google/uuid"
)

// MemorySessionRepository is the in-memory session store used by tests
// and single-node development. One mutex covers all indexes, which
// serializes rotation per token hash and makes revocation win any race
// with an in-flight rotation.
type MemorySessionRepository struct {
	mu         sync.Mutex
	byID       map[string]*models.Session
	byHash     map[string]string // token hash -> session id
	byPrevHash map[string]string // rotated-away hash -> session id
	now        func() time.Time
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{
		byID:       make(map[string]*models.Session),
		byHash:     make(map[string]string),
		byPrevHash: make(map[string]string),
		now:        time.Now,
	}
}

// SetClock replaces the repository's time source. Test use only.
func (r *MemorySessionRepository) SetClock(now func() time.Time) {
	r.now = now
}

func (r *MemorySessionRepository) Create(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session.ID = uuid.New().String()
	session.CreatedAt = r.now()

	stored := *session
	r.byID[stored.ID] = &stored
	r.byHash[stored.TokenHash] = stored.ID
	if stored.PrevTokenHash != "" {
		r.byPrevHash[stored.PrevTokenHash] = stored.ID
	}
	return nil
}

func (r *MemorySessionRepository) GetByID(_ context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *MemorySessionRepository) FindByTokenHash(_ context.Context, hash string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByHashLocked(r.byHash, hash)
}

func (r *MemorySessionRepository) FindByPrevTokenHash(_ context.Context, hash string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findByHashLocked(r.byPrevHash, hash)
}

func (r *MemorySessionRepository) findByHashLocked(index map[string]string, hash string) (*models.Session, error) {
	id, ok := index[hash]
	if !ok {
		return nil, models.ErrNotFound
	}
	session, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

// Rotate replaces the session's hash and expiry in one critical
// section. The lookup and the replacement share the mutex, so two
// callers presenting the same hash cannot both succeed.
func (r *MemorySessionRepository) Rotate(_ context.Context, currentHash, newHash string, newExpiry time.Time) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byHash[currentHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	session := r.byID[id]
	if session.Revoked || !r.now().Before(session.ExpiresAt) {
		return nil, models.ErrNotFound
	}

	if session.PrevTokenHash != "" {
		delete(r.byPrevHash, session.PrevTokenHash)
	}
	delete(r.byHash, currentHash)

	session.PrevTokenHash = currentHash
	session.TokenHash = newHash
	session.ExpiresAt = newExpiry

	r.byHash[newHash] = id
	r.byPrevHash[currentHash] = id

	copied := *session
	return &copied, nil
}

func (r *MemorySessionRepository) Revoke(_ context.Context, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byID[sessionID]
	if !ok {
		return false, nil
	}
	session.Revoked = true
	return true, nil
}

func (r *MemorySessionRepository) RevokeAllForUser(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, session := range r.byID {
		if session.UserID == userID && !session.Revoked {
			session.Revoked = true
			count++
		}
	}
	return count, nil
}

func (r *MemorySessionRepository) ListByUser(_ context.Context, userID string) ([]*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := make([]*models.Session, 0)
	for _, session := range r.byID {
		if session.UserID == userID {
			copied := *session
			sessions = append(sessions, &copied)
		}
	}
	return sessions, nil
}

func (r *MemorySessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var deleted int64
	for id, session := range r.byID {
		if !now.Before(session.ExpiresAt) {
			delete(r.byID, id)
			delete(r.byHash, session.TokenHash)
			if session.PrevTokenHash != "" {
				delete(r.byPrevHash, session.PrevTokenHash)
			}
			deleted++
		}
	}
	return deleted, nil
}

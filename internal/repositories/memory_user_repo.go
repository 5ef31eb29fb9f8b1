package repositories

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fairlines/authcore/internal/models"
	"github.com/google/uuid"
)

// MemoryUserRepository is the in-memory user store counterpart, used by
// tests and single-node development.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string // lowercase email -> user id
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *r.byID[id]
	return &copied, nil
}

func (r *MemoryUserRepository) Create(_ context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user.ID = uuid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	if _, exists := r.byEmail[user.Email]; exists {
		return nil, models.ErrConflict
	}

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if len(user.Roles) == 0 {
		user.Roles = []string{"player"}
	}

	stored := *user
	r.byID[stored.ID] = &stored
	r.byEmail[stored.Email] = stored.ID

	return user, nil
}

func (r *MemoryUserRepository) SetTOTPSecret(_ context.Context, userID, secret string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return models.ErrNotFound
	}
	user.TOTPSecret = secret
	user.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryUserRepository) SetActive(_ context.Context, userID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[userID]
	if !ok {
		return models.ErrNotFound
	}
	user.Active = active
	user.UpdatedAt = time.Now()
	return nil
}

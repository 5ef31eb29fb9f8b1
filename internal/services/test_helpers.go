package services

import (
	"context"
	"time"

	"github.com/fairlines/authcore/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc       func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc    func(ctx context.Context, email string) (*models.User, error)
	SetTOTPSecretFunc func(ctx context.Context, userID, secret string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) SetTOTPSecret(ctx context.Context, userID, secret string) error {
	if m.SetTOTPSecretFunc != nil {
		return m.SetTOTPSecretFunc(ctx, userID, secret)
	}
	return nil
}

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	CreateFunc              func(ctx context.Context, session *models.Session) error
	GetByIDFunc             func(ctx context.Context, id string) (*models.Session, error)
	FindByTokenHashFunc     func(ctx context.Context, hash string) (*models.Session, error)
	FindByPrevTokenHashFunc func(ctx context.Context, hash string) (*models.Session, error)
	RotateFunc              func(ctx context.Context, currentHash, newHash string, newExpiry time.Time) (*models.Session, error)
	RevokeFunc              func(ctx context.Context, sessionID string) (bool, error)
	RevokeAllForUserFunc    func(ctx context.Context, userID string) (int, error)
	ListByUserFunc          func(ctx context.Context, userID string) ([]*models.Session, error)
}

func (m *MockSessionRepository) Create(ctx context.Context, session *models.Session) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) FindByTokenHash(ctx context.Context, hash string) (*models.Session, error) {
	if m.FindByTokenHashFunc != nil {
		return m.FindByTokenHashFunc(ctx, hash)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) FindByPrevTokenHash(ctx context.Context, hash string) (*models.Session, error) {
	if m.FindByPrevTokenHashFunc != nil {
		return m.FindByPrevTokenHashFunc(ctx, hash)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) Rotate(ctx context.Context, currentHash, newHash string, newExpiry time.Time) (*models.Session, error) {
	if m.RotateFunc != nil {
		return m.RotateFunc(ctx, currentHash, newHash, newExpiry)
	}
	return nil, models.ErrNotFound
}

func (m *MockSessionRepository) Revoke(ctx context.Context, sessionID string) (bool, error) {
	if m.RevokeFunc != nil {
		return m.RevokeFunc(ctx, sessionID)
	}
	return false, nil
}

func (m *MockSessionRepository) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	if m.RevokeAllForUserFunc != nil {
		return m.RevokeAllForUserFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockSessionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	return nil, nil
}

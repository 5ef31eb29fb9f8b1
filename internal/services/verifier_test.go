package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/fairlines/authcore/internal/models"
	pkgauth "github.com/fairlines/authcore/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifierUser(t *testing.T, password string) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPassword(password, pkgauth.MinBcryptCost)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		Email:        "alice@example.com",
		PasswordHash: hash,
		Active:       true,
	}
}

func TestVerify_Success(t *testing.T) {
	user := verifierUser(t, "hunter2hunter2")
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			assert.Equal(t, "alice@example.com", email)
			return user, nil
		},
	}
	v := NewCredentialVerifier(repo, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	got, err := v.Verify(context.Background(), " Alice@Example.COM ", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.ID)
}

func TestVerify_WrongPassword(t *testing.T) {
	user := verifierUser(t, "hunter2hunter2")
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	v := NewCredentialVerifier(repo, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := v.Verify(context.Background(), "alice@example.com", "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestVerify_UnknownAccountIndistinguishable(t *testing.T) {
	repo := &MockUserRepository{}
	v := NewCredentialVerifier(repo, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := v.Verify(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestVerify_EmptyInputs(t *testing.T) {
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			t.Fatal("store must not be hit for empty credentials")
			return nil, nil
		},
	}
	v := NewCredentialVerifier(repo, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := v.Verify(context.Background(), "", "password")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = v.Verify(context.Background(), "alice@example.com", "")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestVerify_DeactivatedAccount(t *testing.T) {
	user := verifierUser(t, "hunter2hunter2")
	user.Active = false
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	v := NewCredentialVerifier(repo, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Wrong password on a deactivated account still reads as bad
	// credentials, not as deactivation.
	_, err := v.Verify(context.Background(), "alice@example.com", "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	_, err = v.Verify(context.Background(), "alice@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, models.ErrAccountDeactivated)
}

func TestVerify_StoreError(t *testing.T) {
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return nil, errors.New("connection refused")
		},
	}
	v := NewCredentialVerifier(repo, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := v.Verify(context.Background(), "alice@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, models.ErrInternalServer)
}

func TestVerify_ConcurrentComparisonsBounded(t *testing.T) {
	user := verifierUser(t, "hunter2hunter2")
	repo := &MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return user, nil
		},
	}
	v := NewCredentialVerifier(repo, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Verify(context.Background(), "alice@example.com", "hunter2hunter2")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

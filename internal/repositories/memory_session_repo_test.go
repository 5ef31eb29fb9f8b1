package repositories

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fairlines/authcore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(userID, hash string) *models.Session {
	return &models.Session{
		UserID:    userID,
		TokenHash: hash,
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
}

func TestMemorySessionRepo_CreateAndFind(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	session := newSession("user-1", "hash-a")
	require.NoError(t, repo.Create(ctx, session))
	require.NotEmpty(t, session.ID)

	found, err := repo.FindByTokenHash(ctx, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, session.ID, found.ID)
	assert.Equal(t, "user-1", found.UserID)

	_, err = repo.FindByTokenHash(ctx, "no-such-hash")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemorySessionRepo_RotateIsOneShot(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	session := newSession("user-1", "hash-a")
	require.NoError(t, repo.Create(ctx, session))

	expiry := time.Now().Add(7 * 24 * time.Hour)
	rotated, err := repo.Rotate(ctx, "hash-a", "hash-b", expiry)
	require.NoError(t, err)
	assert.Equal(t, "hash-b", rotated.TokenHash)
	assert.Equal(t, "hash-a", rotated.PrevTokenHash)

	// The old hash no longer rotates
	_, err = repo.Rotate(ctx, "hash-a", "hash-c", expiry)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// But it is findable as a predecessor, for reuse detection
	stale, err := repo.FindByPrevTokenHash(ctx, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, session.ID, stale.ID)
}

func TestMemorySessionRepo_RotateRevokedFails(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	session := newSession("user-1", "hash-a")
	require.NoError(t, repo.Create(ctx, session))

	ok, err := repo.Revoke(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = repo.Rotate(ctx, "hash-a", "hash-b", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemorySessionRepo_RotateExpiredFails(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	session := newSession("user-1", "hash-a")
	session.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.Create(ctx, session))

	_, err := repo.Rotate(ctx, "hash-a", "hash-b", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemorySessionRepo_ConcurrentRotateSameHash(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	session := newSession("user-1", "hash-a")
	require.NoError(t, repo.Create(ctx, session))

	const racers = 16
	var wg sync.WaitGroup
	successes := make(chan struct{}, racers)

	for i := 0; i < racers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Rotate(ctx, "hash-a", "hash-new-"+string(rune('a'+i)), time.Now().Add(time.Hour))
			if err == nil {
				successes <- struct{}{}
			} else if !errors.Is(err, models.ErrNotFound) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	assert.Equal(t, 1, count, "exactly one racer may rotate a given hash")
}

func TestMemorySessionRepo_RevokeWinsOverRotate(t *testing.T) {
	ctx := context.Background()

	// Run the race many times; whatever the interleaving, a successful
	// rotation concurrent with RevokeAllForUser must leave the session
	// revoked, never readable as active.
	for i := 0; i < 200; i++ {
		repo := NewMemorySessionRepository()
		session := newSession("user-race", "hash-race")
		require.NoError(t, repo.Create(ctx, session))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = repo.Rotate(ctx, "hash-race", "hash-race-next", time.Now().Add(time.Hour))
		}()
		go func() {
			defer wg.Done()
			_, _ = repo.RevokeAllForUser(ctx, "user-race")
		}()
		wg.Wait()

		final, err := repo.GetByID(ctx, session.ID)
		require.NoError(t, err)
		assert.True(t, final.Revoked, "revocation must win the race")
	}
}

func TestMemorySessionRepo_RevokeIdempotent(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	session := newSession("user-1", "hash-a")
	require.NoError(t, repo.Create(ctx, session))

	ok, err := repo.Revoke(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Revoke(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, ok, "revoking twice still reports the session as known")

	ok, err = repo.Revoke(ctx, "unknown-id")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemorySessionRepo_RevokeAllForUser(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newSession("user-1", "hash-a")))
	require.NoError(t, repo.Create(ctx, newSession("user-1", "hash-b")))
	require.NoError(t, repo.Create(ctx, newSession("user-2", "hash-c")))

	count, err := repo.RevokeAllForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	other, err := repo.FindByTokenHash(ctx, "hash-c")
	require.NoError(t, err)
	assert.False(t, other.Revoked)

	// Second call finds nothing left to revoke
	count, err = repo.RevokeAllForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemorySessionRepo_DeleteExpired(t *testing.T) {
	repo := NewMemorySessionRepository()
	ctx := context.Background()

	live := newSession("user-1", "hash-live")
	require.NoError(t, repo.Create(ctx, live))

	expired := newSession("user-1", "hash-expired")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.Create(ctx, expired))

	deleted, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.FindByTokenHash(ctx, "hash-expired")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = repo.FindByTokenHash(ctx, "hash-live")
	assert.NoError(t, err)
}

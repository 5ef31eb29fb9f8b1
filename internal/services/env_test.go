package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fairlines/authcore/internal/audit"
	"github.com/fairlines/authcore/internal/auth"
	"github.com/fairlines/authcore/internal/lockout"
	"github.com/fairlines/authcore/internal/models"
	"github.com/fairlines/authcore/internal/repositories"
	pkgauth "github.com/fairlines/authcore/pkg/auth"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testEnv wires a gateway against the in-memory stores with a shared
// fake clock so lockout windows and session expiries can be driven
// deterministically.
type testEnv struct {
	gateway  *AuthGateway
	issuer   *auth.TokenIssuer
	users    *repositories.MemoryUserRepository
	sessions *repositories.MemorySessionRepository
	tracker  *lockout.Tracker
	auditLog *audit.Log
	clock    *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := repositories.NewMemoryUserRepository()
	sessions := repositories.NewMemorySessionRepository()
	sessions.SetClock(clock.Now)

	issuer := auth.NewTokenIssuer("test-signing-secret-0123456789abcdef", 15*time.Minute)
	issuer.SetClock(clock.Now)

	tracker := lockout.NewTracker(lockout.DefaultPolicy())
	tracker.SetClock(clock.Now)

	auditLog := audit.NewLog(discard, audit.WithClock(clock.Now))

	gateway := NewAuthGateway(AuthGatewayConfig{
		Users:            users,
		Sessions:         sessions,
		Verifier:         NewCredentialVerifier(users, 4, discard),
		Issuer:           issuer,
		TOTP:             auth.NewTOTPManager("authcore-test"),
		Tracker:          tracker,
		AuditLog:         auditLog,
		Delay:            auth.NewTimingDelay(auth.TimingConfig{}),
		Logger:           discard,
		RefreshExpiry:    7 * 24 * time.Hour,
		RememberMeExpiry: 30 * 24 * time.Hour,
	})
	gateway.SetClock(clock.Now)

	return &testEnv{
		gateway:  gateway,
		issuer:   issuer,
		users:    users,
		sessions: sessions,
		tracker:  tracker,
		auditLog: auditLog,
		clock:    clock,
	}
}

const testPassword = "correct-horse-battery"

func (env *testEnv) seedUser(t *testing.T, email string) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPassword(testPassword, pkgauth.MinBcryptCost)
	require.NoError(t, err)
	user, err := env.users.Create(context.Background(), &models.User{
		Email:        email,
		Username:     "player_one",
		PasswordHash: hash,
		Active:       true,
		Roles:        []string{"player"},
	})
	require.NoError(t, err)
	return user
}

// lastEvent returns the most recent audit event of the given kind.
func (env *testEnv) lastEvent(kind string) (models.SecurityEvent, bool) {
	for _, ev := range env.auditLog.Recent(env.auditLog.Len()) {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return models.SecurityEvent{}, false
}

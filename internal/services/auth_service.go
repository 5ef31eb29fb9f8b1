package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fairlines/authcore/internal/audit"
	"github.com/fairlines/authcore/internal/auth"
	"github.com/fairlines/authcore/internal/lockout"
	"github.com/fairlines/authcore/internal/models"
	"github.com/fairlines/authcore/pkg/logger"
)

// SessionRepository defines the session store operations the gateway needs.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	FindByTokenHash(ctx context.Context, hash string) (*models.Session, error)
	FindByPrevTokenHash(ctx context.Context, hash string) (*models.Session, error)
	Rotate(ctx context.Context, currentHash, newHash string, newExpiry time.Time) (*models.Session, error)
	Revoke(ctx context.Context, sessionID string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Session, error)
}

// LoginInput carries the credentials presented on a login attempt.
type LoginInput struct {
	Email         string
	Password      string
	TwoFactorCode string
	RememberMe    bool
}

// ClientInfo identifies the device making the request. IPBucket is the
// coarsened network prefix used for lockout accounting and audit
// records; IPAddress is the full address kept on the session row.
type ClientInfo struct {
	IPAddress string
	IPBucket  string
	UserAgent string
}

// UserSummary is the public projection of a user returned to clients.
type UserSummary struct {
	ID               string   `json:"id"`
	Email            string   `json:"email"`
	Username         string   `json:"username"`
	Roles            []string `json:"roles"`
	TwoFactorEnabled bool     `json:"two_factor_enabled"`
}

// AuthResult is what a successful login or refresh hands back: a signed
// access token plus the raw refresh token and how long the caller
// should keep it.
type AuthResult struct {
	AccessToken     string
	RefreshToken    string
	RefreshTokenTTL time.Duration
	SessionID       string
	User            UserSummary
}

const pendingEnrollmentTTL = 10 * time.Minute

type pendingEnrollment struct {
	secret    string
	expiresAt time.Time
}

// AuthGateway coordinates credential verification, lockout accounting,
// session issuance and rotation, and audit recording. It owns no state
// of its own beyond pending two-factor enrollments awaiting
// confirmation.
type AuthGateway struct {
	users    UserRepository
	sessions SessionRepository
	verifier *CredentialVerifier
	issuer   *auth.TokenIssuer
	totp     *auth.TOTPManager
	tracker  *lockout.Tracker
	auditLog *audit.Log
	attempts *logger.AuditLogger
	delay    *auth.TimingDelay
	logger   *slog.Logger

	refreshExpiry    time.Duration
	rememberMeExpiry time.Duration

	mu      sync.Mutex
	pending map[string]pendingEnrollment

	now func() time.Time
}

// AuthGatewayConfig bundles the collaborators an AuthGateway needs.
type AuthGatewayConfig struct {
	Users            UserRepository
	Sessions         SessionRepository
	Verifier         *CredentialVerifier
	Issuer           *auth.TokenIssuer
	TOTP             *auth.TOTPManager
	Tracker          *lockout.Tracker
	AuditLog         *audit.Log
	Delay            *auth.TimingDelay
	Logger           *slog.Logger
	AttemptLogger    *logger.AuditLogger // optional; full-detail attempt mirror in the process log
	RefreshExpiry    time.Duration
	RememberMeExpiry time.Duration
}

func NewAuthGateway(cfg AuthGatewayConfig) *AuthGateway {
	return &AuthGateway{
		users:            cfg.Users,
		sessions:         cfg.Sessions,
		verifier:         cfg.Verifier,
		issuer:           cfg.Issuer,
		totp:             cfg.TOTP,
		tracker:          cfg.Tracker,
		auditLog:         cfg.AuditLog,
		attempts:         cfg.AttemptLogger,
		delay:            cfg.Delay,
		logger:           cfg.Logger,
		refreshExpiry:    cfg.RefreshExpiry,
		rememberMeExpiry: cfg.RememberMeExpiry,
		pending:          make(map[string]pendingEnrollment),
		now:              time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (g *AuthGateway) SetClock(now func() time.Time) {
	g.now = now
}

// Login authenticates the credentials and, on success, opens a new
// session for the device. Failures are padded to comparable wall time
// so response latency does not reveal which check rejected the
// attempt.
func (g *AuthGateway) Login(ctx context.Context, input LoginInput, client ClientInfo) (*AuthResult, error) {
	start := g.now()
	email := strings.ToLower(strings.TrimSpace(input.Email))
	key := lockout.IdentityKey(email, client.IPBucket)

	if g.tracker.IsLocked(key) {
		g.record(models.SecurityEvent{
			Kind:     models.EventLoginFailed,
			Severity: models.SeverityMedium,
			Source:   client.IPBucket,
			Detail:   map[string]string{"email": email, "reason": "locked"},
		})
		g.delay.WaitFrom(start)
		return nil, models.ErrAccountLocked
	}

	user, err := g.verifier.Verify(ctx, email, input.Password)
	if err != nil {
		return nil, g.failLogin(start, key, email, client, "", err)
	}

	if user.TwoFactorEnabled() {
		if input.TwoFactorCode == "" {
			// Not an attempt against the password; the client simply
			// has not supplied a code yet.
			return nil, models.ErrTwoFactorRequired
		}
		if !g.totp.ValidateCode(user.TOTPSecret, input.TwoFactorCode) {
			g.record(models.SecurityEvent{
				Kind:     models.EventTwoFactorRejected,
				Severity: models.SeverityMedium,
				Source:   client.IPBucket,
				UserID:   user.ID,
			})
			return nil, g.failLogin(start, key, email, client, user.ID, models.ErrTwoFactorRequired)
		}
	}

	g.tracker.RecordAttempt(key, true)

	raw, hash, err := auth.NewRefreshToken()
	if err != nil {
		g.logger.Error("failed to mint refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	ttl := g.refreshExpiry
	if input.RememberMe {
		ttl = g.rememberMeExpiry
	}

	session := &models.Session{
		UserID:     user.ID,
		TokenHash:  hash,
		IPAddress:  client.IPAddress,
		UserAgent:  client.UserAgent,
		RememberMe: input.RememberMe,
		ExpiresAt:  g.now().Add(ttl),
	}

	// The client may disconnect between our commit and their receipt of
	// the response; the session write must not be torn down with the
	// request context.
	commitCtx := context.WithoutCancel(ctx)
	if err := g.sessions.Create(commitCtx, session); err != nil {
		g.logger.Error("failed to create session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	accessToken, err := g.issuer.IssueAccessToken(user, session.ID)
	if err != nil {
		g.logger.Error("failed to sign access token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	g.record(models.SecurityEvent{
		Kind:      models.EventLoginSucceeded,
		Severity:  models.SeverityLow,
		Source:    client.IPBucket,
		UserID:    user.ID,
		SessionID: session.ID,
	})
	g.logAttempt(logger.AuditEvent{
		EventType: "login",
		UserID:    user.ID,
		SessionID: session.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Success:   true,
	})

	return &AuthResult{
		AccessToken:     accessToken,
		RefreshToken:    raw,
		RefreshTokenTTL: ttl,
		SessionID:       session.ID,
		User:            summarize(user),
	}, nil
}

// failLogin records a failed attempt against the lockout key, emits the
// audit events, pads the response, and passes the verification error
// through. A correct password against a deactivated account is not
// counted; the credential itself was not wrong.
func (g *AuthGateway) failLogin(start time.Time, key, email string, client ClientInfo, userID string, cause error) error {
	detail := map[string]string{"email": email}

	switch {
	case errors.Is(cause, models.ErrAccountDeactivated):
		detail["reason"] = "deactivated"
	case errors.Is(cause, models.ErrInvalidCredentials), errors.Is(cause, models.ErrTwoFactorRequired):
		if errors.Is(cause, models.ErrTwoFactorRequired) {
			detail["reason"] = "two_factor_rejected"
		} else {
			detail["reason"] = "invalid_credentials"
		}
		if g.tracker.RecordAttempt(key, false) {
			g.record(models.SecurityEvent{
				Kind:     models.EventAccountLocked,
				Severity: models.SeverityHigh,
				Source:   client.IPBucket,
				UserID:   userID,
				Detail:   map[string]string{"email": email},
			})
		}
	}

	g.record(models.SecurityEvent{
		Kind:     models.EventLoginFailed,
		Severity: models.SeverityMedium,
		Source:   client.IPBucket,
		UserID:   userID,
		Detail:   detail,
	})
	g.logAttempt(logger.AuditEvent{
		EventType:     "login",
		UserID:        userID,
		IPAddress:     client.IPAddress,
		UserAgent:     client.UserAgent,
		Success:       false,
		FailureReason: detail["reason"],
	})

	g.delay.WaitFrom(start)
	return cause
}

func (g *AuthGateway) logAttempt(event logger.AuditEvent) {
	if g.attempts != nil {
		g.attempts.LogAuthAttempt(event)
	}
}

// Refresh exchanges a valid refresh token for a fresh access token and
// a replacement refresh token. Presenting a token that has already been
// rotated is treated as theft: the whole session is revoked and a
// critical event recorded.
func (g *AuthGateway) Refresh(ctx context.Context, rawToken string, client ClientInfo) (*AuthResult, error) {
	if rawToken == "" {
		return nil, models.ErrInvalidRefreshToken
	}
	hash := auth.HashRefreshToken(rawToken)
	commitCtx := context.WithoutCancel(ctx)

	session, err := g.sessions.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, g.handleUnknownToken(commitCtx, hash, client)
		}
		g.logger.Error("failed to look up session by token hash", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := g.now()
	if !session.Active(now) {
		if !session.Revoked && !now.Before(session.ExpiresAt) {
			g.record(models.SecurityEvent{
				Kind:      models.EventSessionExpired,
				Severity:  models.SeverityLow,
				Source:    client.IPBucket,
				UserID:    session.UserID,
				SessionID: session.ID,
			})
		}
		return nil, models.ErrInvalidRefreshToken
	}

	user, err := g.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidRefreshToken
		}
		g.logger.Error("failed to load session user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !user.Active {
		return nil, models.ErrInvalidRefreshToken
	}

	raw, newHash, err := auth.NewRefreshToken()
	if err != nil {
		g.logger.Error("failed to mint refresh token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	ttl := g.refreshExpiry
	if session.RememberMe {
		ttl = g.rememberMeExpiry
	}

	rotated, err := g.sessions.Rotate(commitCtx, hash, newHash, now.Add(ttl))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Lost a race: the token was rotated or revoked between the
			// lookup and the swap. If it now sits in prev_token_hash a
			// concurrent caller rotated it first, which makes this
			// presentation a replay.
			return nil, g.handleUnknownToken(commitCtx, hash, client)
		}
		g.logger.Error("failed to rotate session token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	accessToken, err := g.issuer.IssueAccessToken(user, rotated.ID)
	if err != nil {
		g.logger.Error("failed to sign access token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	g.record(models.SecurityEvent{
		Kind:      models.EventTokenRefreshed,
		Severity:  models.SeverityLow,
		Source:    client.IPBucket,
		UserID:    user.ID,
		SessionID: rotated.ID,
	})

	return &AuthResult{
		AccessToken:     accessToken,
		RefreshToken:    raw,
		RefreshTokenTTL: ttl,
		SessionID:       rotated.ID,
		User:            summarize(user),
	}, nil
}

// handleUnknownToken decides whether a token we cannot match to a live
// session is garbage or a replay of a rotated one. A prev_token_hash
// hit means the legitimate holder already rotated past this value, so
// someone else is presenting a stolen copy.
func (g *AuthGateway) handleUnknownToken(ctx context.Context, hash string, client ClientInfo) error {
	session, err := g.sessions.FindByPrevTokenHash(ctx, hash)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			g.logger.Error("failed to check token reuse", slog.Any("error", err))
		}
		return models.ErrInvalidRefreshToken
	}

	if _, err := g.sessions.Revoke(ctx, session.ID); err != nil {
		g.logger.Error("failed to revoke session after token reuse", slog.Any("error", err))
	}

	g.record(models.SecurityEvent{
		Kind:      models.EventRefreshTokenReuse,
		Severity:  models.SeverityCritical,
		Source:    client.IPBucket,
		UserID:    session.UserID,
		SessionID: session.ID,
		Detail:    map[string]string{"action": "session_revoked"},
	})

	return models.ErrInvalidRefreshToken
}

// Logout revokes the session named by the caller's access token. It is
// idempotent; logging out an already-revoked session succeeds quietly.
func (g *AuthGateway) Logout(ctx context.Context, userID, sessionID string, client ClientInfo) error {
	if sessionID == "" {
		return nil
	}

	session, err := g.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		g.logger.Error("failed to load session for logout", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if session.UserID != userID {
		return models.ErrForbidden
	}

	revoked, err := g.sessions.Revoke(context.WithoutCancel(ctx), sessionID)
	if err != nil {
		g.logger.Error("failed to revoke session", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if revoked {
		g.record(models.SecurityEvent{
			Kind:      models.EventLogout,
			Severity:  models.SeverityLow,
			Source:    client.IPBucket,
			UserID:    userID,
			SessionID: sessionID,
		})
		if g.attempts != nil {
			g.attempts.LogSessionAction("logout", userID, sessionID, nil)
		}
	}
	return nil
}

// LogoutAll revokes every active session the user has, across all
// devices, and returns how many were revoked.
func (g *AuthGateway) LogoutAll(ctx context.Context, userID string, client ClientInfo) (int, error) {
	count, err := g.sessions.RevokeAllForUser(context.WithoutCancel(ctx), userID)
	if err != nil {
		g.logger.Error("failed to revoke user sessions", slog.Any("error", err))
		return 0, models.ErrInternalServer
	}

	g.record(models.SecurityEvent{
		Kind:     models.EventLogoutAllDevices,
		Severity: models.SeverityMedium,
		Source:   client.IPBucket,
		UserID:   userID,
		Detail:   map[string]string{"sessions_revoked": strconv.Itoa(count)},
	})
	if g.attempts != nil {
		g.attempts.LogSessionAction("logout_all", userID, "", map[string]string{"sessions_revoked": strconv.Itoa(count)})
	}
	return count, nil
}

// ValidateSession reports whether the named session is still live. The
// access token is stateless, so this is the server-side check for
// callers that need revocation to be visible immediately.
func (g *AuthGateway) ValidateSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := g.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Active(g.now()) {
		return nil, models.ErrNotFound
	}
	return session, nil
}

// ListSessions returns the user's sessions, newest first, for the
// device-management view.
func (g *AuthGateway) ListSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	sessions, err := g.sessions.ListByUser(ctx, userID)
	if err != nil {
		g.logger.Error("failed to list sessions", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return sessions, nil
}

// EnrollTwoFactor generates a TOTP secret and provisioning QR code for
// the user. The secret is held in memory until EnableTwoFactor confirms
// the authenticator with a valid code; abandoned enrollments expire.
func (g *AuthGateway) EnrollTwoFactor(ctx context.Context, userID string) (*auth.Enrollment, error) {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled() {
		return nil, models.ErrConflict
	}

	enrollment, err := g.totp.GenerateEnrollment(user.Email)
	if err != nil {
		g.logger.Error("failed to generate totp enrollment", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	g.mu.Lock()
	g.sweepPendingLocked()
	g.pending[userID] = pendingEnrollment{
		secret:    enrollment.Secret,
		expiresAt: g.now().Add(pendingEnrollmentTTL),
	}
	g.mu.Unlock()

	return enrollment, nil
}

// EnableTwoFactor confirms a pending enrollment with a code from the
// authenticator app and persists the secret on the account.
func (g *AuthGateway) EnableTwoFactor(ctx context.Context, userID, code string, client ClientInfo) error {
	g.mu.Lock()
	g.sweepPendingLocked()
	p, ok := g.pending[userID]
	g.mu.Unlock()
	if !ok {
		return models.ErrBadRequest
	}

	if !g.totp.ValidateCode(p.secret, code) {
		g.record(models.SecurityEvent{
			Kind:     models.EventTwoFactorRejected,
			Severity: models.SeverityMedium,
			Source:   client.IPBucket,
			UserID:   userID,
			Detail:   map[string]string{"phase": "enrollment"},
		})
		return models.ErrBadRequest
	}

	if err := g.users.SetTOTPSecret(context.WithoutCancel(ctx), userID, p.secret); err != nil {
		g.logger.Error("failed to persist totp secret", slog.Any("error", err))
		return models.ErrInternalServer
	}

	g.mu.Lock()
	delete(g.pending, userID)
	g.mu.Unlock()

	g.record(models.SecurityEvent{
		Kind:     models.EventTwoFactorEnabled,
		Severity: models.SeverityLow,
		Source:   client.IPBucket,
		UserID:   userID,
	})
	return nil
}

func (g *AuthGateway) sweepPendingLocked() {
	now := g.now()
	for id, p := range g.pending {
		if now.After(p.expiresAt) {
			delete(g.pending, id)
		}
	}
}

func (g *AuthGateway) record(event models.SecurityEvent) {
	if event.Detail != nil {
		if email, ok := event.Detail["email"]; ok {
			event.Detail["email"] = logger.SanitizedEmail(email)
		}
	}
	g.auditLog.Record(event)
}

func summarize(user *models.User) UserSummary {
	return UserSummary{
		ID:               user.ID,
		Email:            user.Email,
		Username:         user.Username,
		Roles:            user.Roles,
		TwoFactorEnabled: user.TwoFactorEnabled(),
	}
}

package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/fairlines/authcore/internal/models"
	pkgauth "github.com/fairlines/authcore/pkg/auth"
	"golang.org/x/sync/semaphore"
)

// UserRepository defines the user store operations the services need.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SetTOTPSecret(ctx context.Context, userID, secret string) error
}

// dummyBcryptHash is compared against when the account does not exist,
// so the unknown-account path costs one bcrypt verification just like
// the wrong-password path. Hash of an unguessable throwaway value.
const dummyBcryptHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// CredentialVerifier checks an email/password pair against the user
// store. It is pure with respect to auth state: attempt counters live
// in the lockout tracker, not here. bcrypt work runs through a bounded
// semaphore so a burst of login attempts cannot monopolize the
// scheduler at the expense of unrelated requests.
type CredentialVerifier struct {
	users  UserRepository
	sem    *semaphore.Weighted
	logger *slog.Logger
}

// NewCredentialVerifier creates a verifier with at most workers
// concurrent bcrypt comparisons.
func NewCredentialVerifier(users UserRepository, workers int, logger *slog.Logger) *CredentialVerifier {
	if workers < 1 {
		workers = 1
	}
	return &CredentialVerifier{
		users:  users,
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger,
	}
}

// Verify returns the user when the credentials match. Unknown accounts
// and wrong passwords both yield ErrInvalidCredentials so the caller
// cannot enumerate users; a deactivated account is distinguishable by
// design (deactivation is not a secret).
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, models.ErrInvalidCredentials
	}

	user, err := v.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Burn a comparison anyway so this path takes as long as a
			// real mismatch.
			_, _ = v.compare(ctx, dummyBcryptHash, password)
			return nil, models.ErrInvalidCredentials
		}
		v.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	match, err := v.compare(ctx, user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, models.ErrInvalidCredentials
	}

	if !user.Active {
		return nil, models.ErrAccountDeactivated
	}

	return user, nil
}

// compare runs the bcrypt comparison under the worker semaphore. The
// acquire respects context cancellation while queued; once the slot is
// held the comparison runs to completion.
func (v *CredentialVerifier) compare(ctx context.Context, hash, password string) (bool, error) {
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return false, models.ErrInternalServer
	}
	defer v.sem.Release(1)

	match, err := pkgauth.ComparePassword(hash, password)
	if err != nil {
		v.logger.Error("password comparison failed", slog.Any("error", err))
		return false, models.ErrInternalServer
	}
	return match, nil
}

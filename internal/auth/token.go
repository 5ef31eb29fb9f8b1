package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fairlines/authcore/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const refreshTokenBytes = 32 // 256 bits of entropy per refresh token

// TokenIssuer mints and validates access tokens and mints the opaque
// refresh tokens whose hashes the session store persists. It is
// stateless beyond configuration and safe for concurrent use.
type TokenIssuer struct {
	secret            []byte
	accessTokenExpiry time.Duration
	now               func() time.Time
}

// NewTokenIssuer creates a TokenIssuer signing with the given secret.
func NewTokenIssuer(secret string, accessExpiry time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:            []byte(secret),
		accessTokenExpiry: accessExpiry,
		now:               time.Now,
	}
}

// SetClock replaces the issuer's time source. Test use only.
func (ti *TokenIssuer) SetClock(now func() time.Time) {
	ti.now = now
}

// AccessTokenExpiry reports the configured access token lifetime.
func (ti *TokenIssuer) AccessTokenExpiry() time.Duration {
	return ti.accessTokenExpiry
}

// IssueAccessToken creates a short-lived signed token carrying the
// user's identity, current roles and the owning session id.
// Verification needs only the shared secret, never a store lookup.
func (ti *TokenIssuer) IssueAccessToken(user *models.User, sessionID string) (string, error) {
	now := ti.now()

	claims := &models.TokenClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Roles:     user.Roles,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.accessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return tokenString, nil
}

// ValidateAccessToken verifies signature and expiry and returns the
// claims. This is deliberately a stateless check: revoking a session
// denies refresh, not in-flight access tokens, which expire on their
// own within the configured lifetime.
func (ti *TokenIssuer) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ti.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return ti.now() }))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrInvalidCredentials
	}

	return claims, nil
}

// NewRefreshToken mints an opaque refresh token. The raw value goes to
// the client once and is never stored; only the hash is persisted.
func NewRefreshToken() (raw string, hash string, err error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	raw = base64.RawURLEncoding.EncodeToString(buf)
	return raw, HashRefreshToken(raw), nil
}

// HashRefreshToken derives the storage hash for a raw refresh token.
// SHA-256 suffices here: the input is 256 bits of random data, so there
// is nothing for an offline attacker to brute-force the way a password
// hash must resist.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims are the claims carried by a signed access token. Access
// tokens are self-contained: validating one requires only the shared
// secret, never a store lookup.
type TokenClaims struct {
	UserID    string   `json:"user_id"`
	Email     string   `json:"email,omitempty"`
	Username  string   `json:"username,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	SessionID string   `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

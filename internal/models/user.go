package models

import (
	"time"
)

type User struct {
	ID           string
	Email        string // unique, stored lowercase
	Username     string
	PasswordHash string
	Active       bool // soft-deactivation flag; users are never deleted
	Roles        []string
	TOTPSecret   string // empty when two-factor is not enabled
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TwoFactorEnabled reports whether the account requires a TOTP code at login.
func (u *User) TwoFactorEnabled() bool {
	return u.TOTPSecret != ""
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinBcryptCost = bcrypt.MinCost
	MaxBcryptCost = bcrypt.MaxCost
)

// HashPassword hashes a plaintext password with the given bcrypt cost.
// The cost is configuration, not a constant: operators tune it to keep
// hashing time in the 100-300ms range on their hardware.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	if cost < MinBcryptCost || cost > MaxBcryptCost {
		return "", fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, MinBcryptCost, MaxBcryptCost)
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// ComparePassword checks a plaintext password against a stored hash.
// bcrypt's comparison is constant-time with respect to the password, so
// an early byte mismatch leaks no timing signal. Returns true only on an
// exact match; unexpected errors (corrupt hash) are returned separately.
func ComparePassword(hashedPassword, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

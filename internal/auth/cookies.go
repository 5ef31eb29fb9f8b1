package auth

import (
	"net/http"
	"time"
)

const refreshCookieName = "refresh_token"

// CookieConfig holds refresh cookie settings.
type CookieConfig struct {
	Secure bool // HTTPS only; derived from deployment environment
}

// SetRefreshTokenCookie sets the refresh token in an httpOnly cookie.
// SameSite is always Strict: the refresh endpoint is same-origin only.
func SetRefreshTokenCookie(w http.ResponseWriter, refreshToken string, maxAge time.Duration, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		Expires:  time.Now().Add(maxAge),
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true, // refresh tokens must never be readable from JavaScript
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	http.SetCookie(w, cookie)
}

// ClearRefreshTokenCookie clears the refresh token cookie
func ClearRefreshTokenCookie(w http.ResponseWriter, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // Negative MaxAge deletes the cookie
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	http.SetCookie(w, cookie)
}

// GetRefreshTokenCookie retrieves the refresh token from cookies
func GetRefreshTokenCookie(r *http.Request) (string, error) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fairlines/authcore/internal/auth"
	"github.com/fairlines/authcore/internal/models"
	"github.com/fairlines/authcore/internal/services"
	pkghttp "github.com/fairlines/authcore/pkg/http"
)

// AuthGatewayInterface defines the auth operations the handler needs.
type AuthGatewayInterface interface {
	Login(ctx context.Context, input services.LoginInput, client services.ClientInfo) (*services.AuthResult, error)
	Refresh(ctx context.Context, rawToken string, client services.ClientInfo) (*services.AuthResult, error)
	Logout(ctx context.Context, userID, sessionID string, client services.ClientInfo) error
	LogoutAll(ctx context.Context, userID string, client services.ClientInfo) (int, error)
}

// AuthHandler handles login, logout and token refresh requests.
type AuthHandler struct {
	gateway      AuthGatewayInterface
	ipConfig     *pkghttp.IPConfig
	cookieConfig auth.CookieConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(gateway AuthGatewayInterface, ipConfig *pkghttp.IPConfig, cookieConfig auth.CookieConfig) *AuthHandler {
	return &AuthHandler{
		gateway:      gateway,
		ipConfig:     ipConfig,
		cookieConfig: cookieConfig,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"required"`
	TwoFactorCode string `json:"two_factor_code,omitempty" validate:"omitempty,len=6,numeric"`
	RememberMe    bool   `json:"remember_me,omitempty"`
}

// RefreshRequest represents the request body for token refresh. The
// token normally arrives in the refresh cookie; the body field exists
// for non-browser clients.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type LogoutRequest struct {
	AllDevices bool `json:"all_devices,omitempty"`
}

// AuthResponse is the success body for login and refresh.
type AuthResponse struct {
	AccessToken string               `json:"access_token"`
	TokenType   string               `json:"token_type"`
	User        services.UserSummary `json:"user"`
}

// clientInfo captures the caller's address for lockout accounting and
// session records.
func (h *AuthHandler) clientInfo(r *http.Request) services.ClientInfo {
	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	return services.ClientInfo{
		IPAddress: ip,
		IPBucket:  pkghttp.CoarseIPBucket(ip),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} AuthResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	result, err := h.gateway.Login(r.Context(), services.LoginInput{
		Email:         req.Email,
		Password:      req.Password,
		TwoFactorCode: req.TwoFactorCode,
		RememberMe:    req.RememberMe,
	}, h.clientInfo(r))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrTwoFactorRequired):
			// The client needs to know to prompt for a code. This fires
			// only after password success, so it leaks nothing about
			// account existence to a guesser.
			pkghttp.WriteError(w, http.StatusUnauthorized, "two_factor_required", "A two-factor code is required")
		case errors.Is(err, models.ErrInvalidCredentials),
			errors.Is(err, models.ErrAccountLocked),
			errors.Is(err, models.ErrAccountDeactivated):
			// One body for all credential and account-status failures to
			// prevent user enumeration.
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		case errors.Is(err, models.ErrRateLimitExceeded):
			pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	auth.SetRefreshTokenCookie(w, result.RefreshToken, result.RefreshTokenTTL, h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, AuthResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		User:        result.User,
	})
}

// Refresh handles token refresh
// @Summary Refresh access token
// @Accept json
// @Produce json
// @Success 200 {object} AuthResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token, err := auth.GetRefreshTokenCookie(r)
	if err != nil || token == "" {
		var req RefreshRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		pkghttp.WriteUnauthorized(w, "Authentication failed")
		return
	}

	result, err := h.gateway.Refresh(r.Context(), token, h.clientInfo(r))
	if err != nil {
		if errors.Is(err, models.ErrInvalidRefreshToken) {
			// A dead token is useless; make the browser drop it.
			auth.ClearRefreshTokenCookie(w, h.cookieConfig)
			pkghttp.WriteUnauthorized(w, "Authentication failed")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.SetRefreshTokenCookie(w, result.RefreshToken, result.RefreshTokenTTL, h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, AuthResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		User:        result.User,
	})
}

// Logout revokes the caller's current session, or every session when
// the optional body sets all_devices
// @Summary User logout
// @Security BearerAuth
// @Param request body LogoutRequest false "Logout options"
// @Success 200 {object} map[string]string
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	// The body is optional; all_devices widens the logout to every session.
	var req LogoutRequest
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.AllDevices {
		h.LogoutAll(w, r)
		return
	}

	if err := h.gateway.Logout(r.Context(), claims.UserID, claims.SessionID, h.clientInfo(r)); err != nil {
		if errors.Is(err, models.ErrForbidden) {
			pkghttp.WriteForbidden(w, "Access denied")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.ClearRefreshTokenCookie(w, h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// LogoutAll revokes every session the caller has, on all devices
// @Summary Logout from all devices
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]int
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /auth/logout-all [post]
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	count, err := h.gateway.LogoutAll(r.Context(), claims.UserID, h.clientInfo(r))
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	auth.ClearRefreshTokenCookie(w, h.cookieConfig)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]int{"sessions_revoked": count})
}

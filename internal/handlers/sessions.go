package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairlines/authcore/internal/auth"
	"github.com/fairlines/authcore/internal/models"
	"github.com/fairlines/authcore/internal/services"
	pkghttp "github.com/fairlines/authcore/pkg/http"
)

// SessionGatewayInterface defines the session operations the handler needs.
type SessionGatewayInterface interface {
	ListSessions(ctx context.Context, userID string) ([]*models.Session, error)
	Logout(ctx context.Context, userID, sessionID string, client services.ClientInfo) error
}

// SessionHandler serves the device-management view: which sessions a
// user has open and the ability to kill any one of them.
type SessionHandler struct {
	gateway  SessionGatewayInterface
	ipConfig *pkghttp.IPConfig
}

func NewSessionHandler(gateway SessionGatewayInterface, ipConfig *pkghttp.IPConfig) *SessionHandler {
	return &SessionHandler{gateway: gateway, ipConfig: ipConfig}
}

// SessionResponse is the public projection of a session. Token hashes
// never leave the server.
type SessionResponse struct {
	ID         string    `json:"id"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	RememberMe bool      `json:"remember_me"`
	Current    bool      `json:"current"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// List returns the caller's active sessions, newest first
// @Summary List active sessions
// @Security BearerAuth
// @Produce json
// @Success 200 {array} SessionResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/sessions [get]
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	sessions, err := h.gateway.ListSessions(r.Context(), claims.UserID)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]SessionResponse, 0, len(sessions))
	now := time.Now()
	for _, s := range sessions {
		if !s.Active(now) {
			continue
		}
		resp = append(resp, SessionResponse{
			ID:         s.ID,
			IPAddress:  s.IPAddress,
			UserAgent:  s.UserAgent,
			RememberMe: s.RememberMe,
			Current:    s.ID == claims.SessionID,
			CreatedAt:  s.CreatedAt,
			ExpiresAt:  s.ExpiresAt,
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Revoke kills one of the caller's sessions by id
// @Summary Revoke a session
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /auth/sessions/{id} [delete]
func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		pkghttp.WriteBadRequest(w, "Session id is required")
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	client := services.ClientInfo{
		IPAddress: ip,
		IPBucket:  pkghttp.CoarseIPBucket(ip),
		UserAgent: r.Header.Get("User-Agent"),
	}

	if err := h.gateway.Logout(r.Context(), claims.UserID, sessionID, client); err != nil {
		if errors.Is(err, models.ErrForbidden) {
			pkghttp.WriteForbidden(w, "Access denied")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairlines/authcore/internal/auth"
	"github.com/fairlines/authcore/internal/models"
	"github.com/fairlines/authcore/internal/services"
	pkghttp "github.com/fairlines/authcore/pkg/http"
)

// TwoFactorGatewayInterface defines the enrollment operations the handler needs.
type TwoFactorGatewayInterface interface {
	EnrollTwoFactor(ctx context.Context, userID string) (*auth.Enrollment, error)
	EnableTwoFactor(ctx context.Context, userID, code string, client services.ClientInfo) error
	ValidateSession(ctx context.Context, sessionID string) (*models.Session, error)
}

// TwoFactorHandler handles authenticator enrollment for the logged-in user.
type TwoFactorHandler struct {
	gateway  TwoFactorGatewayInterface
	ipConfig *pkghttp.IPConfig
}

func NewTwoFactorHandler(gateway TwoFactorGatewayInterface, ipConfig *pkghttp.IPConfig) *TwoFactorHandler {
	return &TwoFactorHandler{gateway: gateway, ipConfig: ipConfig}
}

// EnableTwoFactorRequest represents the request body for confirming enrollment
type EnableTwoFactorRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

// EnrollmentResponse carries the provisioning material for an authenticator app.
type EnrollmentResponse struct {
	Secret    string `json:"secret"`
	URL       string `json:"url"`
	QRDataURL string `json:"qr_data_url"`
}

// Setup starts two-factor enrollment for the caller
// @Summary Begin two-factor enrollment
// @Security BearerAuth
// @Produce json
// @Success 200 {object} EnrollmentResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /auth/2fa/setup [post]
func (h *TwoFactorHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}
	// Changing authenticator material is sensitive enough that the
	// stateless token alone does not suffice; a revoked session is
	// rejected here immediately rather than at the next refresh.
	if _, err := h.gateway.ValidateSession(r.Context(), claims.SessionID); err != nil {
		pkghttp.WriteUnauthorized(w, "Session is no longer active")
		return
	}

	enrollment, err := h.gateway.EnrollTwoFactor(r.Context(), claims.UserID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteError(w, http.StatusConflict, "conflict", "Two-factor authentication is already enabled")
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, EnrollmentResponse{
		Secret:    enrollment.Secret,
		URL:       enrollment.URL,
		QRDataURL: enrollment.QRDataURL,
	})
}

// Enable confirms enrollment with a code from the authenticator
// @Summary Confirm two-factor enrollment
// @Security BearerAuth
// @Accept json
// @Param request body EnableTwoFactorRequest true "Confirmation code"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /auth/2fa/enable [post]
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}
	if _, err := h.gateway.ValidateSession(r.Context(), claims.SessionID); err != nil {
		pkghttp.WriteUnauthorized(w, "Session is no longer active")
		return
	}

	var req EnableTwoFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	client := services.ClientInfo{
		IPAddress: ip,
		IPBucket:  pkghttp.CoarseIPBucket(ip),
		UserAgent: r.Header.Get("User-Agent"),
	}

	if err := h.gateway.EnableTwoFactor(r.Context(), claims.UserID, req.Code, client); err != nil {
		if errors.Is(err, models.ErrBadRequest) {
			pkghttp.WriteBadRequest(w, "Invalid or expired confirmation code")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

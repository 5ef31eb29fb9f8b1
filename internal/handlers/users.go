package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/fairlines/authcore/internal/auth"
	"github.com/fairlines/authcore/internal/models"
	"github.com/fairlines/authcore/internal/services"
	pkghttp "github.com/fairlines/authcore/pkg/http"
)

// UserServiceInterface defines the user operations the handler needs.
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*services.UserSummary, error)
}

// UserHandler serves profile reads for the logged-in user.
type UserHandler struct {
	service UserServiceInterface
}

func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

// Profile returns the caller's own profile
// @Summary Get own profile
// @Security BearerAuth
// @Produce json
// @Success 200 {object} services.UserSummary
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /auth/profile [get]
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	profile, err := h.service.GetProfile(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, profile)
}

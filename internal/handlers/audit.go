package handlers

import (
	"net/http"
	"strconv"

	"github.com/fairlines/authcore/internal/audit"
	"github.com/fairlines/authcore/internal/models"
	pkghttp "github.com/fairlines/authcore/pkg/http"
)

const defaultAuditPageSize = 100

// AuditHandler exposes the in-memory security event log to operators.
// Routes using it must sit behind the admin role check.
type AuditHandler struct {
	log *audit.Log
}

func NewAuditHandler(log *audit.Log) *AuditHandler {
	return &AuditHandler{log: log}
}

// List returns recent security events, newest first
// @Summary List security events
// @Security BearerAuth
// @Produce json
// @Param limit query int false "Maximum events to return"
// @Param user_id query string false "Filter by user"
// @Param severity query string false "Filter by severity"
// @Success 200 {array} models.SecurityEvent
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /admin/audit [get]
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			pkghttp.WriteBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	userID := r.URL.Query().Get("user_id")
	severity := r.URL.Query().Get("severity")
	if userID != "" && severity != "" {
		pkghttp.WriteBadRequest(w, "user_id and severity filters cannot be combined")
		return
	}

	var events []models.SecurityEvent
	switch {
	case userID != "":
		events = h.log.ByUser(userID, limit)
	case severity != "":
		switch models.Severity(severity) {
		case models.SeverityLow, models.SeverityMedium, models.SeverityHigh, models.SeverityCritical:
		default:
			pkghttp.WriteBadRequest(w, "severity must be one of: low, medium, high, critical")
			return
		}
		events = h.log.BySeverity(models.Severity(severity), limit)
	default:
		events = h.log.Recent(limit)
	}

	pkghttp.WriteJSON(w, http.StatusOK, events)
}

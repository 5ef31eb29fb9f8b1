package models

import "time"

// Severity ranks security events for filtering and alert routing.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event kinds recorded by the auth core.
const (
	EventLoginSucceeded     = "login_succeeded"
	EventLoginFailed        = "login_failed"
	EventAccountLocked      = "account_locked"
	EventLogout             = "logout"
	EventLogoutAllDevices   = "logout_all_devices"
	EventTokenRefreshed     = "token_refreshed"
	EventRefreshTokenReuse  = "refresh_token_reuse"
	EventTwoFactorEnabled   = "two_factor_enabled"
	EventTwoFactorRejected  = "two_factor_rejected"
	EventSessionExpired     = "session_expired"
)

// SecurityEvent is one entry in the append-only audit log.
type SecurityEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Kind      string            `json:"kind"`
	Severity  Severity          `json:"severity"`
	Source    string            `json:"source"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fairlines/authcore/internal/auth"
	"github.com/fairlines/authcore/internal/models"
	"github.com/fairlines/authcore/internal/services"
	pkghttp "github.com/fairlines/authcore/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, sessionID string, roles ...string) *http.Request {
	claims := &models.TokenClaims{
		UserID:    userID,
		SessionID: sessionID,
		Roles:     roles,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockAuthGateway implements AuthGatewayInterface for testing
type MockAuthGateway struct {
	LoginFunc     func(ctx context.Context, input services.LoginInput, client services.ClientInfo) (*services.AuthResult, error)
	RefreshFunc   func(ctx context.Context, rawToken string, client services.ClientInfo) (*services.AuthResult, error)
	LogoutFunc    func(ctx context.Context, userID, sessionID string, client services.ClientInfo) error
	LogoutAllFunc func(ctx context.Context, userID string, client services.ClientInfo) (int, error)
}

func (m *MockAuthGateway) Login(ctx context.Context, input services.LoginInput, client services.ClientInfo) (*services.AuthResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, input, client)
}

func (m *MockAuthGateway) Refresh(ctx context.Context, rawToken string, client services.ClientInfo) (*services.AuthResult, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrInvalidRefreshToken
	}
	return m.RefreshFunc(ctx, rawToken, client)
}

func (m *MockAuthGateway) Logout(ctx context.Context, userID, sessionID string, client services.ClientInfo) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, userID, sessionID, client)
}

func (m *MockAuthGateway) LogoutAll(ctx context.Context, userID string, client services.ClientInfo) (int, error) {
	if m.LogoutAllFunc == nil {
		return 0, nil
	}
	return m.LogoutAllFunc(ctx, userID, client)
}

// MockTwoFactorGateway implements TwoFactorGatewayInterface for testing
type MockTwoFactorGateway struct {
	EnrollTwoFactorFunc func(ctx context.Context, userID string) (*auth.Enrollment, error)
	EnableTwoFactorFunc func(ctx context.Context, userID, code string, client services.ClientInfo) error
	ValidateSessionFunc func(ctx context.Context, sessionID string) (*models.Session, error)
}

func (m *MockTwoFactorGateway) EnrollTwoFactor(ctx context.Context, userID string) (*auth.Enrollment, error) {
	if m.EnrollTwoFactorFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.EnrollTwoFactorFunc(ctx, userID)
}

func (m *MockTwoFactorGateway) EnableTwoFactor(ctx context.Context, userID, code string, client services.ClientInfo) error {
	if m.EnableTwoFactorFunc == nil {
		return models.ErrBadRequest
	}
	return m.EnableTwoFactorFunc(ctx, userID, code, client)
}

func (m *MockTwoFactorGateway) ValidateSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if m.ValidateSessionFunc == nil {
		return &models.Session{ID: sessionID}, nil
	}
	return m.ValidateSessionFunc(ctx, sessionID)
}

// MockSessionGateway implements SessionGatewayInterface for testing
type MockSessionGateway struct {
	ListSessionsFunc func(ctx context.Context, userID string) ([]*models.Session, error)
	LogoutFunc       func(ctx context.Context, userID, sessionID string, client services.ClientInfo) error
}

func (m *MockSessionGateway) ListSessions(ctx context.Context, userID string) ([]*models.Session, error) {
	if m.ListSessionsFunc == nil {
		return nil, nil
	}
	return m.ListSessionsFunc(ctx, userID)
}

func (m *MockSessionGateway) Logout(ctx context.Context, userID, sessionID string, client services.ClientInfo) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, userID, sessionID, client)
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	GetProfileFunc func(ctx context.Context, userID string) (*services.UserSummary, error)
}

func (m *MockUserService) GetProfile(ctx context.Context, userID string) (*services.UserSummary, error) {
	if m.GetProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetProfileFunc(ctx, userID)
}

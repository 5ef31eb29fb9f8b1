package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fairlines/authcore/internal/auth"
	"github.com/fairlines/authcore/internal/handlers"
	"github.com/fairlines/authcore/internal/models"
	"github.com/fairlines/authcore/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult() *services.AuthResult {
	return &services.AuthResult{
		AccessToken:     "access_token_123",
		RefreshToken:    "refresh_token_123",
		RefreshTokenTTL: 7 * 24 * time.Hour,
		SessionID:       "sess-1",
		User: services.UserSummary{
			ID:    "user-1",
			Email: "user@example.com",
			Roles: []string{"player"},
		},
	}
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	return nil
}

func TestLogin_Success(t *testing.T) {
	mockAuth := &handlers.MockAuthGateway{
		LoginFunc: func(ctx context.Context, input services.LoginInput, client services.ClientInfo) (*services.AuthResult, error) {
			assert.Equal(t, "user@example.com", input.Email)
			return testResult(), nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, auth.CookieConfig{})
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "User@Example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp handlers.AuthResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "access_token_123", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "user-1", resp.User.ID)

	cookie := refreshCookie(t, w)
	require.NotNil(t, cookie, "login must set the refresh cookie")
	assert.Equal(t, "refresh_token_123", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookie.MaxAge)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	mockAuth := &handlers.MockAuthGateway{
		LoginFunc: func(ctx context.Context, input services.LoginInput, client services.ClientInfo) (*services.AuthResult, error) {
			return nil, models.ErrInvalidCredentials
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, auth.CookieConfig{})
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "wrongpassword",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestLogin_LockedAndDeactivatedLookAlike(t *testing.T) {
	// A guesser must not be able to tell a locked account, a
	// deactivated account and a bad password apart from the response.
	for _, cause := range []error{models.ErrAccountLocked, models.ErrAccountDeactivated, models.ErrInvalidCredentials} {
		mockAuth := &handlers.MockAuthGateway{
			LoginFunc: func(ctx context.Context, input services.LoginInput, client services.ClientInfo) (*services.AuthResult, error) {
				return nil, cause
			},
		}

		handler := handlers.NewAuthHandler(mockAuth, nil, auth.CookieConfig{})
		req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
			Email:    "user@example.com",
			Password: "password123",
		})

		w := httptest.NewRecorder()
		handler.Login(w, req)

		handlers.AssertErrorResponse(t, w, 401, "unauthorized")
	}
}

func TestLogin_TwoFactorRequired(t *testing.T) {
	mockAuth := &handlers.MockAuthGateway{
		LoginFunc: func(ctx context.Context, input services.LoginInput, client services.ClientInfo) (*services.AuthResult, error) {
			return nil, models.ErrTwoFactorRequired
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, auth.CookieConfig{})
	req := handlers.NewTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "password123",
	})

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 401, "two_factor_required")
}

func TestLogin_ValidationFailures(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthGateway{}, nil, auth.CookieConfig{})

	cases := []handlers.LoginRequest{
		{Email: "", Password: "password123"},
		{Email: "not-an-email", Password: "password123"},
		{Email: "user@example.com", Password: ""},
		{Email: "user@example.com", Password: "password123", TwoFactorCode: "12345"},
		{Email: "user@example.com", Password: "password123", TwoFactorCode: "abcdef"},
	}
	for _, body := range cases {
		req := handlers.NewTestRequest(t, "POST", "/auth/login", body)
		w := httptest.NewRecorder()
		handler.Login(w, req)
		handlers.AssertErrorResponse(t, w, 400, "bad_request")
	}
}

func TestLogin_MalformedBody(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthGateway{}, nil, auth.CookieConfig{})
	req := httptest.NewRequest("POST", "/auth/login", nil)

	w := httptest.NewRecorder()
	handler.Login(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestRefresh_FromCookie(t *testing.T) {
	mockAuth := &handlers.MockAuthGateway{
		RefreshFunc: func(ctx context.Context, rawToken string, client services.ClientInfo) (*services.AuthResult, error) {
			assert.Equal(t, "old_refresh_token", rawToken)
			result := testResult()
			result.RefreshToken = "new_refresh_token"
			return result, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, auth.CookieConfig{})
	req := httptest.NewRequest("POST", "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "old_refresh_token"})

	w := httptest.NewRecorder()
	handler.Refresh(w, req)

	var resp handlers.AuthResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, "access_token_123", resp.AccessToken)

	cookie := refreshCookie(t, w)
	require.NotNil(t, cookie)
	assert.Equal(t, "new_refresh_token", cookie.Value)
}

func TestRefresh_FromBody(t *testing.T) {
	mockAuth := &handlers.MockAuthGateway{
		RefreshFunc: func(ctx context.Context, rawToken string, client services.ClientInfo) (*services.AuthResult, error) {
			assert.Equal(t, "body_token", rawToken)
			return testResult(), nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, auth.CookieConfig{})
	req := handlers.NewTestRequest(t, "POST", "/auth/refresh", handlers.RefreshRequest{
		RefreshToken: "body_token",
	})

	w := httptest.NewRecorder()
	handler.Refresh(w, req)

	assert.Equal(t, 200, w.Code)
}

func TestRefresh_InvalidTokenClearsCookie(t *testing.T) {
	mockAuth := &handlers.MockAuthGateway{
		RefreshFunc: func(ctx context.Context, rawToken string, client services.ClientInfo) (*services.AuthResult, error) {
			return nil, models.ErrInvalidRefreshToken
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, auth.CookieConfig{})
	req := httptest.NewRequest("POST", "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: "stolen_token"})

	w := httptest.NewRecorder()
	handler.Refresh(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")

	cookie := refreshCookie(t, w)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestRefresh_MissingToken(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthGateway{}, nil, auth.CookieConfig{})
	req := httptest.NewRequest("POST", "/auth/refresh", nil)

	w := httptest.NewRecorder()
	handler.Refresh(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestLogout_Success(t *testing.T) {
	var gotSessionID string
	mockAuth := &handlers.MockAuthGateway{
		LogoutFunc: func(ctx context.Context, userID, sessionID string, client services.ClientInfo) error {
			gotSessionID = sessionID
			return nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, auth.CookieConfig{})
	req := handlers.WithAuthContext(httptest.NewRequest("POST", "/auth/logout", nil), "user-1", "sess-1")

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "sess-1", gotSessionID)
	assert.Contains(t, w.Body.String(), "Logged out")

	cookie := refreshCookie(t, w)
	require.NotNil(t, cookie, "logout must clear the refresh cookie")
	assert.Negative(t, cookie.MaxAge)
}

func TestLogout_AllDevicesFlag(t *testing.T) {
	logoutCalled := false
	mockAuth := &handlers.MockAuthGateway{
		LogoutFunc: func(ctx context.Context, userID, sessionID string, client services.ClientInfo) error {
			logoutCalled = true
			return nil
		},
		LogoutAllFunc: func(ctx context.Context, userID string, client services.ClientInfo) (int, error) {
			return 2, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, auth.CookieConfig{})
	body := strings.NewReader(`{"all_devices":true}`)
	req := handlers.WithAuthContext(httptest.NewRequest("POST", "/auth/logout", body), "user-1", "sess-1")

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	assert.Equal(t, 200, w.Code)
	assert.False(t, logoutCalled, "all_devices must widen to every session, not revoke just one")
	assert.Contains(t, w.Body.String(), `"sessions_revoked":2`)
}

func TestLogout_Unauthenticated(t *testing.T) {
	handler := handlers.NewAuthHandler(&handlers.MockAuthGateway{}, nil, auth.CookieConfig{})
	req := httptest.NewRequest("POST", "/auth/logout", nil)

	w := httptest.NewRecorder()
	handler.Logout(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestLogoutAll_Success(t *testing.T) {
	mockAuth := &handlers.MockAuthGateway{
		LogoutAllFunc: func(ctx context.Context, userID string, client services.ClientInfo) (int, error) {
			assert.Equal(t, "user-1", userID)
			return 3, nil
		},
	}

	handler := handlers.NewAuthHandler(mockAuth, nil, auth.CookieConfig{})
	req := handlers.WithAuthContext(httptest.NewRequest("POST", "/auth/logout-all", nil), "user-1", "sess-1")

	w := httptest.NewRecorder()
	handler.LogoutAll(w, req)

	var resp map[string]int
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, 3, resp["sessions_revoked"])
}

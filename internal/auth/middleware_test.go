package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fairlines/authcore/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueTestToken(t *testing.T, issuer *TokenIssuer, roles []string) string {
	t.Helper()
	user := testUser()
	user.Roles = roles
	token, err := issuer.IssueAccessToken(user, "sess-1")
	require.NoError(t, err)
	return token
}

func protectedHandler(t *testing.T, wantUserID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := GetUserFromContext(r)
		require.NotNil(t, claims)
		assert.Equal(t, wantUserID, claims.UserID)
		w.WriteHeader(http.StatusOK)
	}
}

func TestMiddleware_ValidToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute)
	handler := Middleware(issuer)(protectedHandler(t, "user-1"))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, issuer, nil))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_MissingHeader(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute)
	handler := Middleware(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_MalformedHeader(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute)
	handler := Middleware(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	for _, header := range []string{"Basic abc", "Bearer", "token-without-scheme"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestMiddleware_ExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute)

	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer.SetClock(func() time.Time { return issued })
	token := issueTestToken(t, issuer, nil)
	issuer.SetClock(func() time.Time { return issued.Add(time.Hour) })

	handler := Middleware(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole_Allowed(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute)
	handler := Middleware(issuer)(RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, issuer, []string{"player", "admin"}))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole_Forbidden(t *testing.T) {
	issuer := NewTokenIssuer(testSecret, 15*time.Minute)
	handler := Middleware(issuer)(RequireRole("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	})))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, issuer, []string{"player"}))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetUserFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	var claims *models.TokenClaims = GetUserFromContext(req)
	assert.Nil(t, claims)
}

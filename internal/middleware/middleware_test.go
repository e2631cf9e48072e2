package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	secret = "test-secret"
	issuer = "regdesk"
)

func newEcho() *echo.Echo {
	e := echo.New()
	api := e.Group("/api", AuthMiddleware(secret, issuer))
	api.GET("/me", func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c))
	})
	api.GET("/staff", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, RequireStaff())

	limiter := NewRateLimiter(2)
	api.POST("/vouchers", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, limiter.Limit())
	return e
}

func do(t *testing.T, e *echo.Echo, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	e := newEcho()

	token, err := IssueToken(secret, issuer, "alice", false, time.Hour)
	require.NoError(t, err)

	rec := do(t, e, http.MethodGet, "/api/me", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())

	tests := []struct {
		name  string
		token func() string
	}{
		{name: "missing", token: func() string { return "" }},
		{name: "garbage", token: func() string { return "not-a-token" }},
		{name: "wrong secret", token: func() string {
			tok, _ := IssueToken("other", issuer, "alice", false, time.Hour)
			return tok
		}},
		{name: "wrong issuer", token: func() string {
			tok, _ := IssueToken(secret, "someone-else", "alice", false, time.Hour)
			return tok
		}},
		{name: "expired", token: func() string {
			tok, _ := IssueToken(secret, issuer, "alice", false, -time.Minute)
			return tok
		}},
		{name: "no subject", token: func() string {
			tok, _ := IssueToken(secret, issuer, "", false, time.Hour)
			return tok
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, http.MethodGet, "/api/me", tt.token())
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireStaff(t *testing.T) {
	e := newEcho()

	user, err := IssueToken(secret, issuer, "alice", false, time.Hour)
	require.NoError(t, err)
	staff, err := IssueToken(secret, issuer, "sam", true, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusForbidden, do(t, e, http.MethodGet, "/api/staff", user).Code)
	assert.Equal(t, http.StatusNoContent, do(t, e, http.MethodGet, "/api/staff", staff).Code)
}

func TestRateLimiter_PerUser(t *testing.T) {
	e := newEcho()

	alice, err := IssueToken(secret, issuer, "alice", false, time.Hour)
	require.NoError(t, err)
	bob, err := IssueToken(secret, issuer, "bob", false, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, do(t, e, http.MethodPost, "/api/vouchers", alice).Code)
	assert.Equal(t, http.StatusNoContent, do(t, e, http.MethodPost, "/api/vouchers", alice).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, e, http.MethodPost, "/api/vouchers", alice).Code)

	assert.Equal(t, http.StatusNoContent, do(t, e, http.MethodPost, "/api/vouchers", bob).Code)
}

func TestRateLimiter_ForgetsIdleUsers(t *testing.T) {
	rl := NewRateLimiter(1)
	start := time.Now()

	assert.True(t, rl.allow("alice", start))
	assert.False(t, rl.allow("alice", start))
	assert.Len(t, rl.limiters, 1)

	assert.True(t, rl.allow("bob", start.Add(11*time.Minute)))
	assert.Len(t, rl.limiters, 1)
}

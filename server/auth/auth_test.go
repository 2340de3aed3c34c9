package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newAuthedEcho(anonymousID int32) *echo.Echo {
	e := echo.New()
	g := e.Group("/api", Middleware(testSecret, anonymousID))
	g.GET("/whoami", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]int32{"user_id": UserID(c)})
	})
	return e
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(7, testSecret)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	require.Equal(t, int32(7), claims.UserID)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(7, testSecret)
	require.NoError(t, err)

	_, err = ParseToken(token, "other-secret")
	require.Error(t, err)
}

func TestMiddlewareRequiresToken(t *testing.T) {
	e := newAuthedEcho(0)

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Token abc")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	e := newAuthedEcho(0)
	token, err := GenerateToken(3, testSecret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"user_id":3`)
}

func TestMiddlewareAnonymousFallback(t *testing.T) {
	e := newAuthedEcho(1)

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"user_id":1`)
}

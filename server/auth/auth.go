// Package auth issues and verifies the bearer tokens protecting the API.
package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	userIDContextKey = "auth.user_id"

	// defaultTokenTTL keeps issued tokens valid for a week.
	defaultTokenTTL = 7 * 24 * time.Hour
)

// Claims is the JWT payload. The subject carries the numeric user id.
type Claims struct {
	UserID int32 `json:"uid"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for the given user.
func GenerateToken(userID int32, secret string) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(defaultTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies a signed token and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return claims, nil
}

// Middleware authenticates requests with a bearer token and stores the user
// id in the request context. When anonymousID is non-zero, requests without
// an Authorization header run as that user; this is the dev-mode shortcut.
func Middleware(secret string, anonymousID int32) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				if anonymousID != 0 {
					c.Set(userIDContextKey, anonymousID)
					return next(c)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			if tokenString == header {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := ParseToken(tokenString, secret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(userIDContextKey, claims.UserID)
			return next(c)
		}
	}
}

// UserID returns the authenticated user id, or 0 when the request is not
// authenticated.
func UserID(c echo.Context) int32 {
	if id, ok := c.Get(userIDContextKey).(int32); ok {
		return id
	}
	return 0
}

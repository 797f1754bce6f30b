package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ContextKey represents keys for context values
type ContextKey string

// UserContextKey is where RequireAuth stores the authenticated claims
const UserContextKey ContextKey = "user"

// RequireAuth creates authentication middleware that resolves the bearer
// credential into a user identity
func RequireAuth(tokenService *TokenService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authorization header required")
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
			}

			claims, err := tokenService.ValidateToken(tokenParts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}

			c.Set(string(UserContextKey), claims)
			return next(c)
		}
	}
}

// CurrentUser returns the authenticated claims set by RequireAuth. Panics
// when called from a route that is not behind the middleware.
func CurrentUser(c echo.Context) *JWTClaims {
	claims, ok := c.Get(string(UserContextKey)).(*JWTClaims)
	if !ok {
		panic("auth: CurrentUser called without RequireAuth middleware")
	}
	return claims
}

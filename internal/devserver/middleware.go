package devserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"shopfront/pkg/tokens"
)

// BearerAuth validates the Authorization header and stores the caller's
// identity on the echo context.
func BearerAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			claims, err := tokens.AccessClaimsFromToken(strings.TrimPrefix(header, "Bearer "), secret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid access token")
			}
			userID, err := strconv.ParseUint(claims.Subject, 10, 64)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject claim")
			}
			c.Set("userID", uint(userID))
			c.Set("role", claims.Role)
			return next(c)
		}
	}
}

func userID(c echo.Context) uint {
	id, _ := c.Get("userID").(uint)
	return id
}

// RateLimit rejects requests over the configured rate with a 429 and a
// Retry-After hint so clients can back off.
func RateLimit(rps float64, burst int) echo.MiddlewareFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !limiter.Allow() {
				c.Response().Header().Set("Retry-After", "1")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

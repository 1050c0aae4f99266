package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// SharedSecretAuth guards machine-to-machine endpoints (cron triggers, payout
// confirmation callbacks) with a shared-secret header. An empty configured
// secret rejects everything rather than failing open.
func SharedSecretAuth(header, secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			provided := c.Request().Header.Get(header)
			if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing secret")
			}
			return next(c)
		}
	}
}

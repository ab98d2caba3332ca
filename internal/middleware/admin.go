package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-seat-hold/internal/utils"
)

// AdminKeyHeader carries the plain admin key.
const AdminKeyHeader = "X-Admin-Key"

// RequireAdminKey guards a route with a shared key whose bcrypt hash is
// configured.  An empty hash leaves the route open.
func RequireAdminKey(hash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if hash == "" {
			return next
		}
		return func(c echo.Context) error {
			key := c.Request().Header.Get(AdminKeyHeader)
			if key == "" || !utils.VerifySecret(hash, key) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid admin key"})
			}
			return next(c)
		}
	}
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is the liveness probe used by load balancers.  It never touches
// the store.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

package middleware

import "github.com/labstack/echo/v4"

const userIDKey = "user_id"

// CurrentUserID returns the user id JWTAuth stored in the context.  ok is
// false when the request carried no token, i.e. when guest sessions are
// disabled.
func CurrentUserID(c echo.Context) (id string, ok bool) {
	id, ok = c.Get(userIDKey).(string)
	return id, ok && id != ""
}

package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-seat-hold/internal/utils"
)

// SessionHandler hands out guest identities.  Sessions only exist when a
// signing secret is configured; otherwise clients pick their own userId.
type SessionHandler struct {
	secret string
	ttl    time.Duration
}

// NewSessionHandler returns a handler signing tokens with secret that live
// for ttl.
func NewSessionHandler(secret string, ttl time.Duration) *SessionHandler {
	return &SessionHandler{secret: secret, ttl: ttl}
}

// Enabled reports whether guest sessions are issued at all.
func (h *SessionHandler) Enabled() bool { return h.secret != "" }

// Create handles POST /api/session.  It mints a random guest id and a
// bearer token whose subject is that id.
func (h *SessionHandler) Create(c echo.Context) error {
	if !h.Enabled() {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "sessions are disabled"})
	}
	userID := uuid.NewString()
	tok, err := utils.NewAccessToken(h.secret, userID, h.ttl)
	if err != nil {
		c.Logger().Errorf("session: sign token: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create session"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"userId":  userID,
		"token":   tok.Token,
		"expires": tok.Exp,
	})
}

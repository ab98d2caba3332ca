package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/venue-seat-hold/internal/middleware"
	"github.com/iliyamo/venue-seat-hold/internal/model"
)

// Reservations is the part of the engine the seat routes drive.
type Reservations interface {
	GenerateLayout(ctx context.Context, rows, cols int) error
	SeatView(ctx context.Context, userID string) ([]model.SeatView, error)
	HoldSeat(ctx context.Context, userID string, seat model.Seat) (model.SeatView, error)
	ReleaseSeat(ctx context.Context, userID string, seat model.Seat) (model.SeatView, error)
	BookSeats(ctx context.Context, userID string, seats []model.Seat) error
}

// SeatHandler serves the layout and seat routes.  Requests are validated
// here; seat ids are parsed into grid coordinates before the engine sees
// them.
type SeatHandler struct {
	svc       Reservations
	layoutMin int
	layoutMax int
}

// NewSeatHandler accepts layouts between layoutMin and layoutMax rows and
// columns inclusive.
func NewSeatHandler(svc Reservations, layoutMin, layoutMax int) *SeatHandler {
	if svc == nil {
		panic("nil service passed to NewSeatHandler")
	}
	return &SeatHandler{svc: svc, layoutMin: layoutMin, layoutMax: layoutMax}
}

type layoutRequest struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

type seatRequest struct {
	SeatID string `json:"seatId"`
	UserID string `json:"userId"`
}

type bookRequest struct {
	SeatIDs []string `json:"seatIds"`
	UserID  string   `json:"userId"`
}

// GenerateLayout handles POST /api/layout.
func (h *SeatHandler) GenerateLayout(c echo.Context) error {
	var body layoutRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if !h.inBounds(body.Rows) || !h.inBounds(body.Cols) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": fmt.Sprintf("rows and cols must be integers between %d and %d", h.layoutMin, h.layoutMax),
		})
	}
	if err := h.svc.GenerateLayout(c.Request().Context(), body.Rows, body.Cols); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// GetSeats handles GET /api/seats?userId=.
func (h *SeatHandler) GetSeats(c echo.Context) error {
	userID, status, msg := requestUser(c, c.QueryParam("userId"))
	if status != 0 {
		return c.JSON(status, echo.Map{"error": msg})
	}
	views, err := h.svc.SeatView(c.Request().Context(), userID)
	if err != nil {
		return writeServiceError(c, err)
	}
	if views == nil {
		views = []model.SeatView{}
	}
	return c.JSON(http.StatusOK, echo.Map{"seats": views})
}

// Hold handles POST /api/seats/hold.
func (h *SeatHandler) Hold(c echo.Context) error {
	return h.singleSeat(c, h.svc.HoldSeat)
}

// Release handles POST /api/seats/release.
func (h *SeatHandler) Release(c echo.Context) error {
	return h.singleSeat(c, h.svc.ReleaseSeat)
}

func (h *SeatHandler) singleSeat(c echo.Context, op func(context.Context, string, model.Seat) (model.SeatView, error)) error {
	var body seatRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	userID, status, msg := requestUser(c, body.UserID)
	if status != 0 {
		return c.JSON(status, echo.Map{"error": msg})
	}
	seat, err := model.ParseSeatID(body.SeatID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": fmt.Sprintf("invalid seatId %q", body.SeatID)})
	}
	view, err := op(c.Request().Context(), userID, seat)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"seat": view})
}

// Book handles POST /api/seats/book.
func (h *SeatHandler) Book(c echo.Context) error {
	var body bookRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	userID, status, msg := requestUser(c, body.UserID)
	if status != 0 {
		return c.JSON(status, echo.Map{"error": msg})
	}
	if len(body.SeatIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seatIds must contain at least one seat"})
	}
	seats := make([]model.Seat, 0, len(body.SeatIDs))
	for _, id := range body.SeatIDs {
		seat, err := model.ParseSeatID(id)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": fmt.Sprintf("invalid seatId %q", id)})
		}
		seats = append(seats, seat)
	}
	if err := h.svc.BookSeats(c.Request().Context(), userID, seats); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

func (h *SeatHandler) inBounds(n int) bool {
	return n >= h.layoutMin && n <= h.layoutMax
}

// requestUser resolves the acting user.  With a session token the token
// subject wins and a different userId in the request is refused; without
// one the request must name the user.  A non-zero status means reject.
func requestUser(c echo.Context, claimed string) (string, int, string) {
	claimed = strings.TrimSpace(claimed)
	if sub, ok := middleware.CurrentUserID(c); ok {
		if claimed != "" && claimed != sub {
			return "", http.StatusForbidden, "userId does not match session"
		}
		return sub, 0, ""
	}
	if claimed == "" {
		return "", http.StatusBadRequest, "userId is required"
	}
	return claimed, 0, ""
}

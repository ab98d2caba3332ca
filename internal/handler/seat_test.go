package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-seat-hold/internal/broadcast"
	"github.com/iliyamo/venue-seat-hold/internal/model"
	"github.com/iliyamo/venue-seat-hold/internal/repository"
	"github.com/iliyamo/venue-seat-hold/internal/service"
)

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

func mountSeats(e *echo.Echo, h *SeatHandler) {
	e.POST("/api/layout", h.GenerateLayout)
	e.GET("/api/seats", h.GetSeats)
	e.POST("/api/seats/hold", h.Hold)
	e.POST("/api/seats/release", h.Release)
	e.POST("/api/seats/book", h.Book)
}

func newTestServer(t *testing.T) (*echo.Echo, *broadcast.Recorder) {
	t.Helper()
	rec := &broadcast.Recorder{}
	svc := service.NewReservationService(repository.NewMemoryLedger(), rec, service.Options{
		HoldDuration: time.Minute,
		Logger:       quietLogger(),
	})
	e := echo.New()
	e.Logger = quietLogger()
	mountSeats(e, NewSeatHandler(svc, 3, 20))
	return e, rec
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func seatBody(t *testing.T, rec *httptest.ResponseRecorder) model.SeatView {
	t.Helper()
	var out struct {
		Seat model.SeatView `json:"seat"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Seat
}

func seatsBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]model.SeatView {
	t.Helper()
	var out struct {
		Seats []model.SeatView `json:"seats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	byID := make(map[string]model.SeatView, len(out.Seats))
	for _, s := range out.Seats {
		byID[s.SeatID] = s
	}
	return byID
}

func TestGenerateLayoutBounds(t *testing.T) {
	e, _ := newTestServer(t)

	for _, body := range []string{
		`{"rows":2,"cols":5}`,
		`{"rows":5,"cols":21}`,
		`{"rows":"five","cols":5}`,
		`{"rows":4.5,"cols":5}`,
		`not json`,
	} {
		rec := do(e, http.MethodPost, "/api/layout", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), `"error"`, body)
	}

	rec := do(e, http.MethodPost, "/api/layout", `{"rows":3,"cols":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	seats := seatsBody(t, do(e, http.MethodGet, "/api/seats?userId=u1", ""))
	assert.Len(t, seats, 12)
	assert.Equal(t, model.StatusAvailable, seats["C4"].Status)
}

func TestGetSeatsWithoutLayoutIsEmptyArray(t *testing.T) {
	e, _ := newTestServer(t)
	rec := do(e, http.MethodGet, "/api/seats?userId=u1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"seats":[]}`, rec.Body.String())
}

func TestGetSeatsRequiresUser(t *testing.T) {
	e, _ := newTestServer(t)
	rec := do(e, http.MethodGet, "/api/seats", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(e, http.MethodGet, "/api/seats?userId=%20%20", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHoldReleaseOverHTTP(t *testing.T) {
	e, bc := newTestServer(t)
	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/layout", `{"rows":3,"cols":4}`).Code)
	bc.Reset()

	rec := do(e, http.MethodPost, "/api/seats/hold", `{"seatId":"a1","userId":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	view := seatBody(t, rec)
	assert.Equal(t, "A1", view.SeatID)
	assert.Equal(t, model.StatusHeldByMe, view.Status)
	assert.Greater(t, view.RemainingHoldMs, int64(0))

	events := bc.Events()
	require.Len(t, events, 1)
	assert.Equal(t, broadcast.EventSeatUpdate, events[0].Name)

	rec = do(e, http.MethodPost, "/api/seats/hold", `{"seatId":"A1","userId":"u2"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	seats := seatsBody(t, do(e, http.MethodGet, "/api/seats?userId=u2", ""))
	assert.Equal(t, model.StatusHeldByOther, seats["A1"].Status)
	assert.Greater(t, seats["A1"].RemainingHoldMs, int64(0))
	assert.LessOrEqual(t, seats["A1"].RemainingHoldMs, time.Minute.Milliseconds())

	rec = do(e, http.MethodPost, "/api/seats/release", `{"seatId":"A1","userId":"u2"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPost, "/api/seats/release", `{"seatId":"A1","userId":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusAvailable, seatBody(t, rec).Status)
}

func TestHoldRejectsBadSeats(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/seats/hold", `{"seatId":"A1","userId":"u1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no layout yet")

	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/layout", `{"rows":3,"cols":3}`).Code)

	for _, id := range []string{"", "1A", "A0", "A-1", "A01", "ABCD1"} {
		rec := do(e, http.MethodPost, "/api/seats/hold", `{"seatId":"`+id+`","userId":"u1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}

	rec = do(e, http.MethodPost, "/api/seats/hold", `{"seatId":"D1","userId":"u1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(e, http.MethodPost, "/api/seats/hold", `{"seatId":"A4","userId":"u1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodPost, "/api/seats/hold", `{"seatId":"A1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookOverHTTP(t *testing.T) {
	e, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/layout", `{"rows":3,"cols":5}`).Code)
	for _, id := range []string{"B2", "B3", "B5"} {
		require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/seats/hold", `{"seatId":"`+id+`","userId":"u1"}`).Code)
	}

	rec := do(e, http.MethodPost, "/api/seats/book", `{"seatIds":[],"userId":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(e, http.MethodPost, "/api/seats/book", `{"seatIds":["B2","??"],"userId":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/seats/book", `{"seatIds":["B3","B5"],"userId":"u1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "gap at B4")

	rec = do(e, http.MethodPost, "/api/seats/book", `{"seatIds":["B3","B2"],"userId":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	seats := seatsBody(t, do(e, http.MethodGet, "/api/seats?userId=u2", ""))
	assert.Equal(t, model.StatusBooked, seats["B2"].Status)
	assert.Equal(t, model.StatusBooked, seats["B3"].Status)
	assert.Equal(t, model.StatusHeldByOther, seats["B5"].Status)

	rec = do(e, http.MethodPost, "/api/seats/hold", `{"seatId":"B2","userId":"u2"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionUserOverridesBody(t *testing.T) {
	svc := service.NewReservationService(repository.NewMemoryLedger(), broadcast.Nop{}, service.Options{Logger: quietLogger()})
	require.NoError(t, svc.GenerateLayout(context.Background(), 3, 3))
	direct := echo.New()
	direct.Logger = quietLogger()
	direct.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", "guest-1")
			return next(c)
		}
	})
	mountSeats(direct, NewSeatHandler(svc, 3, 20))

	rec := do(direct, http.MethodPost, "/api/seats/hold", `{"seatId":"A1","userId":"someone-else"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(direct, http.MethodPost, "/api/seats/hold", `{"seatId":"A1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusHeldByMe, seatBody(t, rec).Status)

	rec = do(direct, http.MethodGet, "/api/seats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusHeldByMe, seatsBody(t, rec)["A1"].Status)
}

type brokenReservations struct{}

var errStoreDown = errors.New("connection refused")

func (brokenReservations) GenerateLayout(context.Context, int, int) error { return errStoreDown }
func (brokenReservations) SeatView(context.Context, string) ([]model.SeatView, error) {
	return nil, errStoreDown
}
func (brokenReservations) HoldSeat(context.Context, string, model.Seat) (model.SeatView, error) {
	return model.SeatView{}, errStoreDown
}
func (brokenReservations) ReleaseSeat(context.Context, string, model.Seat) (model.SeatView, error) {
	return model.SeatView{}, errStoreDown
}
func (brokenReservations) BookSeats(context.Context, string, []model.Seat) error { return errStoreDown }

func TestInfrastructureErrorsAre500(t *testing.T) {
	e := echo.New()
	e.Logger = quietLogger()
	mountSeats(e, NewSeatHandler(brokenReservations{}, 3, 20))

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/layout", `{"rows":3,"cols":3}`},
		{http.MethodGet, "/api/seats?userId=u1", ""},
		{http.MethodPost, "/api/seats/hold", `{"seatId":"A1","userId":"u1"}`},
		{http.MethodPost, "/api/seats/release", `{"seatId":"A1","userId":"u1"}`},
		{http.MethodPost, "/api/seats/book", `{"seatIds":["A1"],"userId":"u1"}`},
	} {
		rec := do(e, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tc.path)
		assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String(), tc.path)
	}
}

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/health", Health)
	rec := do(e, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}

package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-seat-hold/internal/broadcast"
	"github.com/iliyamo/venue-seat-hold/internal/model"
)

func TestSeatViewsPrecedence(t *testing.T) {
	now := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	snap := model.Snapshot{
		Layout:    model.Layout{Rows: 3, Cols: 3},
		HasLayout: true,
		TakenAt:   now,
		Booked:    []model.Seat{{Row: 1, Col: 1}},
		Holds: []model.SeatHold{
			// a stray hold on a booked seat must not show through
			{Seat: model.Seat{Row: 1, Col: 1}, UserID: "me", ExpiresAt: now.Add(time.Minute)},
			{Seat: model.Seat{Row: 1, Col: 2}, UserID: "me", ExpiresAt: now.Add(1500 * time.Millisecond)},
			{Seat: model.Seat{Row: 1, Col: 3}, UserID: "other", ExpiresAt: now.Add(time.Second)},
			{Seat: model.Seat{Row: 2, Col: 1}, UserID: "me", ExpiresAt: now},
		},
	}

	views := seatViews(snap, "me")
	require.Len(t, views, 9)
	assert.Equal(t, model.SeatView{SeatID: "A1", Row: 1, Col: 1, Status: model.StatusBooked}, views[0])
	assert.Equal(t, model.SeatView{SeatID: "A2", Row: 1, Col: 2, Status: model.StatusHeldByMe, RemainingHoldMs: 1500}, views[1])
	assert.Equal(t, model.SeatView{SeatID: "A3", Row: 1, Col: 3, Status: model.StatusHeldByOther, RemainingHoldMs: 1000}, views[2])
	assert.Equal(t, model.SeatView{SeatID: "B1", Row: 2, Col: 1, Status: model.StatusAvailable}, views[3])

	updates := seatUpdates(snap)
	require.Len(t, updates, 9)
	assert.Equal(t, broadcast.StateBooked, updates[0].Status)
	assert.Nil(t, updates[0].HoldUntil)
	assert.Equal(t, broadcast.StateHeld, updates[2].Status)
	assert.Equal(t, "other", updates[2].HoldUserID)
	require.NotNil(t, updates[2].HoldUntil)
	assert.True(t, updates[2].HoldUntil.Equal(now.Add(time.Second)))
	assert.Equal(t, broadcast.StateAvailable, updates[3].Status)
}

func TestSeatViewsWithoutLayout(t *testing.T) {
	assert.Equal(t, []model.SeatView{}, seatViews(model.Snapshot{}, "me"))
	assert.Equal(t, []broadcast.SeatUpdate{}, seatUpdates(model.Snapshot{}))
}

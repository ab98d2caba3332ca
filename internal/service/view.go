package service

import (
	"github.com/iliyamo/venue-seat-hold/internal/broadcast"
	"github.com/iliyamo/venue-seat-hold/internal/model"
)

// seatIndex resolves every seat of a snapshot to its booking or active hold.
type seatIndex struct {
	snap   model.Snapshot
	booked map[model.Seat]struct{}
	holds  map[model.Seat]model.SeatHold
}

func indexSnapshot(snap model.Snapshot) seatIndex {
	idx := seatIndex{
		snap:   snap,
		booked: make(map[model.Seat]struct{}, len(snap.Booked)),
		holds:  make(map[model.Seat]model.SeatHold, len(snap.Holds)),
	}
	for _, s := range snap.Booked {
		idx.booked[s] = struct{}{}
	}
	for _, h := range snap.Holds {
		if h.Active(snap.TakenAt) {
			idx.holds[h.Seat] = h
		}
	}
	return idx
}

// view computes the status of seat for userID.  A booking always wins over
// a hold.
func (idx seatIndex) view(seat model.Seat, userID string) model.SeatView {
	v := model.SeatView{SeatID: seat.ID(), Row: seat.Row, Col: seat.Col, Status: model.StatusAvailable}
	if _, ok := idx.booked[seat]; ok {
		v.Status = model.StatusBooked
		return v
	}
	if h, ok := idx.holds[seat]; ok {
		v.Status = model.StatusHeldByOther
		if h.UserID == userID {
			v.Status = model.StatusHeldByMe
		}
		v.RemainingHoldMs = h.Remaining(idx.snap.TakenAt).Milliseconds()
	}
	return v
}

// update computes the viewer-independent broadcast state of seat.
func (idx seatIndex) update(seat model.Seat) broadcast.SeatUpdate {
	u := broadcast.SeatUpdate{SeatID: seat.ID(), Row: seat.Row, Col: seat.Col, Status: broadcast.StateAvailable}
	if _, ok := idx.booked[seat]; ok {
		u.Status = broadcast.StateBooked
		return u
	}
	if h, ok := idx.holds[seat]; ok {
		until := h.ExpiresAt.UTC()
		u.Status = broadcast.StateHeld
		u.HoldUserID = h.UserID
		u.HoldUntil = &until
	}
	return u
}

// seatViews returns one view per seat of the layout in row-major order, or
// an empty slice when there is no layout.
func seatViews(snap model.Snapshot, userID string) []model.SeatView {
	if !snap.HasLayout {
		return []model.SeatView{}
	}
	idx := indexSnapshot(snap)
	seats := snap.Layout.Seats()
	out := make([]model.SeatView, 0, len(seats))
	for _, s := range seats {
		out = append(out, idx.view(s, userID))
	}
	return out
}

// seatUpdates is the seatsSync payload for snap.
func seatUpdates(snap model.Snapshot) []broadcast.SeatUpdate {
	if !snap.HasLayout {
		return []broadcast.SeatUpdate{}
	}
	idx := indexSnapshot(snap)
	seats := snap.Layout.Seats()
	out := make([]broadcast.SeatUpdate, 0, len(seats))
	for _, s := range seats {
		out = append(out, idx.update(s))
	}
	return out
}

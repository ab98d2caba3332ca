package model

import "time"

// SeatStatus is the per-viewer status of a seat.
type SeatStatus string

const (
	StatusAvailable   SeatStatus = "available"
	StatusHeldByMe    SeatStatus = "heldByMe"
	StatusHeldByOther SeatStatus = "heldByOther"
	StatusBooked      SeatStatus = "booked"
)

// SeatView is the derived status of one seat as seen by a particular user.
// It is never persisted.
type SeatView struct {
	SeatID          string     `json:"seatId"`
	Row             int        `json:"row"`
	Col             int        `json:"col"`
	Status          SeatStatus `json:"status"`
	RemainingHoldMs int64      `json:"remainingHoldMs"`
}

// Snapshot is a point-in-time read of the layout, the active holds and the
// union of booked seats.  HasLayout is false before the first layout exists.
type Snapshot struct {
	Layout    Layout
	HasLayout bool
	Holds     []SeatHold
	Booked    []Seat
	TakenAt   time.Time
}

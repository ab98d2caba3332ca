package model

import "time"

// SeatHold represents a temporary, owner-scoped claim on a seat.  A hold
// whose ExpiresAt is not after the current instant is dead even while it is
// still physically stored; the next transaction touching the seat purges it.
//
// Fields:
//  Seat      – seat being held.
//  UserID    – user who holds the seat.
//  ExpiresAt – absolute instant the hold stops being active.
type SeatHold struct {
	Seat      Seat      // seat_holds.seat_row, seat_holds.seat_col
	UserID    string    // seat_holds.user_id
	ExpiresAt time.Time // seat_holds.expires_at
}

// Active reports whether the hold is still in force at now.
func (h SeatHold) Active(now time.Time) bool { return h.ExpiresAt.After(now) }

// Remaining returns the time left on the hold, never negative.
func (h SeatHold) Remaining(now time.Time) time.Duration {
	if d := h.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

package model

import "time"

// Booking records the seats permanently committed to a user.  There is one
// booking per user; later successful bookings add seats to the same record.
// Bookings are never reduced or revoked.
//
// Fields:
//  UserID   – owner of the booking.
//  Seats    – every seat the user has booked so far.
//  BookedAt – when the booking was first created.
type Booking struct {
	UserID   string    // bookings.user_id
	Seats    []Seat    // booked_seats rows for the user
	BookedAt time.Time // bookings.booked_at
}

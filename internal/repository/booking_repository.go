package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/venue-seat-hold/internal/model"
)

// BookingRepo provides access to the bookings and booked_seats tables.  A
// booking row exists once per user; booked_seats maps every committed seat
// to its owner and its primary key (seat_row, seat_col) guarantees that a
// seat can never be booked twice.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// AnyBookedTx reports whether at least one of seats is already booked.  The
// read is a locking read so that a concurrent booking of the same seat is
// serialized behind the calling transaction.
func (r *BookingRepo) AnyBookedTx(ctx context.Context, tx *sql.Tx, seats []model.Seat) (bool, error) {
	if len(seats) == 0 {
		return false, nil
	}
	in, args := seatTuples(seats)
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM booked_seats WHERE (seat_row, seat_col) IN (`+in+`) LIMIT 1 FOR UPDATE`,
		args...,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpsertTx creates the user's booking row when missing (booked_at is only
// set on creation) and adds seats to it.  It returns false when one of the
// seats is booked already, leaving the caller to roll back.
func (r *BookingRepo) UpsertTx(ctx context.Context, tx *sql.Tx, userID string, seats []model.Seat, now time.Time) (bool, error) {
	seats = dedupeSeats(seats)
	if len(seats) == 0 {
		return true, nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (user_id, booked_at) VALUES (?, ?) ON DUPLICATE KEY UPDATE user_id = user_id`,
		userID, now.UTC(),
	); err != nil {
		return false, err
	}
	query := `INSERT INTO booked_seats (seat_row, seat_col, user_id) VALUES `
	args := make([]interface{}, 0, len(seats)*3)
	for i, s := range seats {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, s.Row, s.Col, userID)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// BookedSeatsTx returns the union of every booking's seats.
func (r *BookingRepo) BookedSeatsTx(ctx context.Context, tx *sql.Tx) ([]model.Seat, error) {
	rows, err := tx.QueryContext(ctx, `SELECT seat_row, seat_col FROM booked_seats`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.Row, &s.Col); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// DeleteAllTx removes every booking.  booked_seats goes first because it
// references bookings.
func (r *BookingRepo) DeleteAllTx(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM booked_seats`); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `DELETE FROM bookings`)
	return err
}

package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/venue-seat-hold/internal/model"
)

// SeatHoldRepo provides data access to the seat_holds table.  The primary
// key is (seat_row, seat_col), so a seat physically carries at most one hold
// row; expired rows linger until a transaction touching the seat purges
// them.  All methods run inside a caller-supplied transaction and compare
// expiry against the caller's clock rather than the database clock.
type SeatHoldRepo struct {
	db *sql.DB
}

// NewSeatHoldRepo returns a new SeatHoldRepo bound to the provided database.
func NewSeatHoldRepo(db *sql.DB) *SeatHoldRepo { return &SeatHoldRepo{db: db} }

// PurgeExpiredTx removes the hold on a single seat when it expired at or
// before now.  It returns the number of rows removed.
func (r *SeatHoldRepo) PurgeExpiredTx(ctx context.Context, tx *sql.Tx, seat model.Seat, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM seat_holds WHERE seat_row = ? AND seat_col = ? AND expires_at <= ?`,
		seat.Row, seat.Col, now.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpireHoldsTx removes every hold that expired at or before now and
// returns the seats whose holds were removed.  Rows are locked before the
// delete so the returned list matches what was actually deleted.
//
// When there are no expired holds, it returns an empty slice and nil error.
func (r *SeatHoldRepo) ExpireHoldsTx(ctx context.Context, tx *sql.Tx, now time.Time) ([]model.Seat, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT seat_row, seat_col FROM seat_holds WHERE expires_at <= ? FOR UPDATE`,
		now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	var expired []model.Seat
	for rows.Next() {
		var s model.Seat
		if scanErr := rows.Scan(&s.Row, &s.Col); scanErr != nil {
			rows.Close()
			return nil, scanErr
		}
		expired = append(expired, s)
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return []model.Seat{}, nil
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM seat_holds WHERE expires_at <= ?`, now.UTC()); err != nil {
		return nil, err
	}
	return expired, nil
}

// CreateTx inserts a hold.  It returns false without error when the seat
// already carries a hold row (primary key violation), which is how two
// racing holds on the same seat are told apart.
func (r *SeatHoldRepo) CreateTx(ctx context.Context, tx *sql.Tx, h model.SeatHold) (bool, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO seat_holds (seat_row, seat_col, user_id, expires_at) VALUES (?, ?, ?, ?)`,
		h.Seat.Row, h.Seat.Col, h.UserID, h.ExpiresAt.UTC(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DeleteActiveTx removes the hold on seat owned by userID when it is still
// active at now.  Holds owned by other users are never touched.
func (r *SeatHoldRepo) DeleteActiveTx(ctx context.Context, tx *sql.Tx, seat model.Seat, userID string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM seat_holds WHERE seat_row = ? AND seat_col = ? AND user_id = ? AND expires_at > ?`,
		seat.Row, seat.Col, userID, now.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountActiveByUserTx counts the active holds owned by userID among seats.
// Matching rows are locked so a concurrent release or purge waits for the
// calling transaction.
func (r *SeatHoldRepo) CountActiveByUserTx(ctx context.Context, tx *sql.Tx, seats []model.Seat, userID string, now time.Time) (int, error) {
	if len(seats) == 0 {
		return 0, nil
	}
	in, args := seatTuples(seats)
	args = append([]interface{}{userID, now.UTC()}, args...)
	rows, err := tx.QueryContext(ctx,
		`SELECT seat_row FROM seat_holds WHERE user_id = ? AND expires_at > ? AND (seat_row, seat_col) IN (`+in+`) FOR UPDATE`,
		args...,
	)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	return n, rows.Err()
}

// DeleteByUserAndSeatsTx removes the holds owned by userID on the given seats.
func (r *SeatHoldRepo) DeleteByUserAndSeatsTx(ctx context.Context, tx *sql.Tx, seats []model.Seat, userID string) error {
	if len(seats) == 0 {
		return nil
	}
	in, args := seatTuples(seats)
	args = append([]interface{}{userID}, args...)
	_, err := tx.ExecContext(ctx,
		`DELETE FROM seat_holds WHERE user_id = ? AND (seat_row, seat_col) IN (`+in+`)`,
		args...,
	)
	return err
}

// DeleteAllTx empties the table.
func (r *SeatHoldRepo) DeleteAllTx(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM seat_holds`)
	return err
}

// ActiveTx lists every hold that is active at now.
func (r *SeatHoldRepo) ActiveTx(ctx context.Context, tx *sql.Tx, now time.Time) ([]model.SeatHold, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT seat_row, seat_col, user_id, expires_at FROM seat_holds WHERE expires_at > ?`,
		now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var holds []model.SeatHold
	for rows.Next() {
		var h model.SeatHold
		if err := rows.Scan(&h.Seat.Row, &h.Seat.Col, &h.UserID, &h.ExpiresAt); err != nil {
			return nil, err
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return holds, nil
}

// seatTuples renders "(?, ?),(?, ?)" for a row-constructor IN list together
// with its arguments.
func seatTuples(seats []model.Seat) (string, []interface{}) {
	parts := make([]string, 0, len(seats))
	args := make([]interface{}, 0, len(seats)*2)
	for _, s := range seats {
		parts = append(parts, "(?, ?)")
		args = append(args, s.Row, s.Col)
	}
	return strings.Join(parts, ","), args
}

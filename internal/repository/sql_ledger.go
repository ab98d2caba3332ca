package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/venue-seat-hold/internal/model"
)

// SQLLedger implements Ledger on MySQL.  Per-seat mutual exclusion comes
// from InnoDB: the primary keys of seat_holds and booked_seats plus locking
// reads inside each transaction.
type SQLLedger struct {
	db       *sql.DB
	layouts  *LayoutRepo
	holds    *SeatHoldRepo
	bookings *BookingRepo
}

// NewSQLLedger wires the table repositories around db.
func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{
		db:       db,
		layouts:  NewLayoutRepo(db),
		holds:    NewSeatHoldRepo(db),
		bookings: NewBookingRepo(db),
	}
}

// DB exposes the underlying handle.
func (l *SQLLedger) DB() *sql.DB { return l.db }

// WithTx begins a transaction, runs fn and commits on a true outcome.  The
// deferred rollback guarantees the connection goes back to the pool on
// every other path, panics included.
func (l *SQLLedger) WithTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) (bool, error)) (bool, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	ok, err := fn(ctx, &sqlTx{l: l, tx: tx})
	if err != nil {
		return false, classifyTxError(err)
	}
	if !ok {
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, classifyTxError(fmt.Errorf("commit transaction: %w", err))
	}
	committed = true
	return true, nil
}

// Snapshot reads layout, active holds and booked seats inside one read-only
// transaction so the three reads agree with each other.
func (l *SQLLedger) Snapshot(ctx context.Context, now time.Time) (model.Snapshot, error) {
	snap := model.Snapshot{TakenAt: now}
	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return snap, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	layout, ok, err := l.layouts.GetTx(ctx, tx)
	if err != nil {
		return snap, fmt.Errorf("load layout: %w", err)
	}
	if !ok {
		return snap, nil
	}
	snap.Layout, snap.HasLayout = layout, true
	if snap.Holds, err = l.holds.ActiveTx(ctx, tx, now); err != nil {
		return snap, fmt.Errorf("load holds: %w", err)
	}
	if snap.Booked, err = l.bookings.BookedSeatsTx(ctx, tx); err != nil {
		return snap, fmt.Errorf("load bookings: %w", err)
	}
	return snap, nil
}

// sqlTx adapts one *sql.Tx to LedgerTx by delegating to the table repositories.
type sqlTx struct {
	l  *SQLLedger
	tx *sql.Tx
}

func (t *sqlTx) Layout(ctx context.Context) (model.Layout, bool, error) {
	return t.l.layouts.GetTx(ctx, t.tx)
}

func (t *sqlTx) ReplaceLayout(ctx context.Context, layout model.Layout) error {
	return t.l.layouts.ReplaceTx(ctx, t.tx, layout)
}

func (t *sqlTx) DeleteAllHolds(ctx context.Context) error {
	return t.l.holds.DeleteAllTx(ctx, t.tx)
}

func (t *sqlTx) DeleteAllBookings(ctx context.Context) error {
	return t.l.bookings.DeleteAllTx(ctx, t.tx)
}

func (t *sqlTx) AnyBooked(ctx context.Context, seats []model.Seat) (bool, error) {
	return t.l.bookings.AnyBookedTx(ctx, t.tx, seats)
}

func (t *sqlTx) PurgeExpiredHolds(ctx context.Context, seat model.Seat, now time.Time) (int64, error) {
	return t.l.holds.PurgeExpiredTx(ctx, t.tx, seat, now)
}

func (t *sqlTx) PurgeAllExpiredHolds(ctx context.Context, now time.Time) ([]model.Seat, error) {
	return t.l.holds.ExpireHoldsTx(ctx, t.tx, now)
}

func (t *sqlTx) InsertHold(ctx context.Context, hold model.SeatHold) (bool, error) {
	return t.l.holds.CreateTx(ctx, t.tx, hold)
}

func (t *sqlTx) DeleteHold(ctx context.Context, seat model.Seat, userID string, now time.Time) (bool, error) {
	return t.l.holds.DeleteActiveTx(ctx, t.tx, seat, userID, now)
}

func (t *sqlTx) CountActiveHolds(ctx context.Context, seats []model.Seat, userID string, now time.Time) (int, error) {
	return t.l.holds.CountActiveByUserTx(ctx, t.tx, seats, userID, now)
}

func (t *sqlTx) DeleteHolds(ctx context.Context, seats []model.Seat, userID string) error {
	return t.l.holds.DeleteByUserAndSeatsTx(ctx, t.tx, seats, userID)
}

func (t *sqlTx) UpsertBooking(ctx context.Context, userID string, seats []model.Seat, now time.Time) (bool, error) {
	return t.l.bookings.UpsertTx(ctx, t.tx, userID, seats, now)
}

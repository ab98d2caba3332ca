package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-seat-hold/internal/model"
)

var t0 = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

func newMockLedger(t *testing.T) (*SQLLedger, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLLedger(db), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestSQLLedgerHoldCommits(t *testing.T) {
	l, mock := newMockLedger(t)
	seat := model.Seat{Row: 1, Col: 2}

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM seat_holds WHERE seat_row = ? AND seat_col = ? AND expires_at <= ?")).
		WithArgs(1, 2, t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO seat_holds (seat_row, seat_col, user_id, expires_at)")).
		WithArgs(1, 2, "u1", t0.Add(time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := l.WithTx(context.Background(), func(ctx context.Context, tx LedgerTx) (bool, error) {
		n, err := tx.PurgeExpiredHolds(ctx, seat, t0)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		return tx.InsertHold(ctx, model.SeatHold{Seat: seat, UserID: "u1", ExpiresAt: t0.Add(time.Minute)})
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerDuplicateHoldRollsBack(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO seat_holds")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1-1' for key 'PRIMARY'"})
	mock.ExpectRollback()

	ok, err := l.WithTx(context.Background(), func(ctx context.Context, tx LedgerTx) (bool, error) {
		return tx.InsertHold(ctx, model.SeatHold{Seat: model.Seat{Row: 1, Col: 1}, UserID: "u2", ExpiresAt: t0})
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerDeadlockIsWriteConflict(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT seat_row FROM seat_holds WHERE user_id = ? AND expires_at > ? AND (seat_row, seat_col) IN ((?, ?),(?, ?)) FOR UPDATE")).
		WithArgs("u1", t0, 1, 1, 1, 2).
		WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	mock.ExpectRollback()

	ok, err := l.WithTx(context.Background(), func(ctx context.Context, tx LedgerTx) (bool, error) {
		_, err := tx.CountActiveHolds(ctx, []model.Seat{{Row: 1, Col: 1}, {Row: 1, Col: 2}}, "u1", t0)
		return false, err
	})
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrWriteConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerOtherErrorsPassThrough(t *testing.T) {
	l, mock := newMockLedger(t)
	boom := errors.New("bad connection")

	mock.ExpectBegin()
	mock.ExpectExec(q("DELETE FROM seat_holds")).WillReturnError(boom)
	mock.ExpectRollback()

	_, err := l.WithTx(context.Background(), func(ctx context.Context, tx LedgerTx) (bool, error) {
		return false, tx.DeleteAllHolds(ctx)
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrWriteConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerBookSeats(t *testing.T) {
	l, mock := newMockLedger(t)
	seats := []model.Seat{{Row: 2, Col: 3}, {Row: 2, Col: 4}}

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT seat_row FROM seat_holds WHERE user_id = ?")).
		WithArgs("u1", t0, 2, 3, 2, 4).
		WillReturnRows(sqlmock.NewRows([]string{"seat_row"}).AddRow(2).AddRow(2))
	mock.ExpectQuery(q("SELECT 1 FROM booked_seats WHERE (seat_row, seat_col) IN ((?, ?),(?, ?)) LIMIT 1 FOR UPDATE")).
		WithArgs(2, 3, 2, 4).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectExec(q("INSERT INTO bookings (user_id, booked_at) VALUES (?, ?) ON DUPLICATE KEY UPDATE user_id = user_id")).
		WithArgs("u1", t0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("INSERT INTO booked_seats (seat_row, seat_col, user_id) VALUES (?, ?, ?),(?, ?, ?)")).
		WithArgs(2, 3, "u1", 2, 4, "u1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q("DELETE FROM seat_holds WHERE user_id = ? AND (seat_row, seat_col) IN ((?, ?),(?, ?))")).
		WithArgs("u1", 2, 3, 2, 4).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ok, err := l.WithTx(context.Background(), func(ctx context.Context, tx LedgerTx) (bool, error) {
		n, err := tx.CountActiveHolds(ctx, seats, "u1", t0)
		if err != nil || n != len(seats) {
			return false, err
		}
		taken, err := tx.AnyBooked(ctx, seats)
		if err != nil || taken {
			return false, err
		}
		created, err := tx.UpsertBooking(ctx, "u1", seats, t0)
		if err != nil || !created {
			return false, err
		}
		return true, tx.DeleteHolds(ctx, seats, "u1")
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerDoubleBookingRollsBack(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO bookings")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(q("INSERT INTO booked_seats")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectRollback()

	ok, err := l.WithTx(context.Background(), func(ctx context.Context, tx LedgerTx) (bool, error) {
		return tx.UpsertBooking(ctx, "u2", []model.Seat{{Row: 1, Col: 1}, {Row: 1, Col: 1}}, t0)
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerResetLayout(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO layout (id, seat_rows, seat_cols) VALUES (?, ?, ?)")).
		WithArgs(1, 4, 6).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q("DELETE FROM seat_holds")).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(q("DELETE FROM booked_seats")).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(q("DELETE FROM bookings")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := l.WithTx(context.Background(), func(ctx context.Context, tx LedgerTx) (bool, error) {
		if err := tx.ReplaceLayout(ctx, model.Layout{Rows: 4, Cols: 6}); err != nil {
			return false, err
		}
		if err := tx.DeleteAllHolds(ctx); err != nil {
			return false, err
		}
		return true, tx.DeleteAllBookings(ctx)
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerExpireAll(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT seat_row, seat_col FROM seat_holds WHERE expires_at <= ? FOR UPDATE")).
		WithArgs(t0).
		WillReturnRows(sqlmock.NewRows([]string{"seat_row", "seat_col"}).AddRow(1, 1).AddRow(3, 2))
	mock.ExpectExec(q("DELETE FROM seat_holds WHERE expires_at <= ?")).
		WithArgs(t0).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	var freed []model.Seat
	ok, err := l.WithTx(context.Background(), func(ctx context.Context, tx LedgerTx) (bool, error) {
		var err error
		freed, err = tx.PurgeAllExpiredHolds(ctx, t0)
		return err == nil, err
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []model.Seat{{Row: 1, Col: 1}, {Row: 3, Col: 2}}, freed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerSnapshot(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT seat_rows, seat_cols FROM layout WHERE id = ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"seat_rows", "seat_cols"}).AddRow(3, 4))
	mock.ExpectQuery(q("SELECT seat_row, seat_col, user_id, expires_at FROM seat_holds WHERE expires_at > ?")).
		WithArgs(t0).
		WillReturnRows(sqlmock.NewRows([]string{"seat_row", "seat_col", "user_id", "expires_at"}).
			AddRow(1, 2, "u1", t0.Add(time.Minute)))
	mock.ExpectQuery(q("SELECT seat_row, seat_col FROM booked_seats")).
		WillReturnRows(sqlmock.NewRows([]string{"seat_row", "seat_col"}).AddRow(2, 2))
	mock.ExpectRollback()

	snap, err := l.Snapshot(context.Background(), t0)
	require.NoError(t, err)
	assert.True(t, snap.HasLayout)
	assert.Equal(t, model.Layout{Rows: 3, Cols: 4}, snap.Layout)
	require.Len(t, snap.Holds, 1)
	assert.Equal(t, "u1", snap.Holds[0].UserID)
	assert.Equal(t, []model.Seat{{Row: 2, Col: 2}}, snap.Booked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLLedgerSnapshotWithoutLayout(t *testing.T) {
	l, mock := newMockLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT seat_rows, seat_cols FROM layout")).
		WillReturnRows(sqlmock.NewRows([]string{"seat_rows", "seat_cols"}))
	mock.ExpectRollback()

	snap, err := l.Snapshot(context.Background(), t0)
	require.NoError(t, err)
	assert.False(t, snap.HasLayout)
	assert.NoError(t, mock.ExpectationsWereMet())
}

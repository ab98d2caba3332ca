package repository

import (
	"context"
	"time"

	"github.com/iliyamo/venue-seat-hold/internal/model"
)

// Ledger is the transactional store behind the reservation engine: the
// active layout, the hold ledger and the booking ledger.  It offers atomic
// primitives only; every business rule lives in the service layer.
type Ledger interface {
	// WithTx runs fn inside one atomic transaction.  The transaction commits
	// only when fn returns (true, nil); a false outcome or an error rolls it
	// back.  The session is released on every exit path.  Write conflicts
	// detected by the store surface as ErrWriteConflict.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) (bool, error)) (bool, error)

	// Snapshot reads the layout, the holds active at now and every booked
	// seat.  It is a best-effort read and is not isolated from writes that
	// commit right after it.
	Snapshot(ctx context.Context, now time.Time) (model.Snapshot, error)
}

// LedgerTx is the set of primitives available inside a transaction.  The
// ctx passed to each method must be the one handed to the WithTx callback.
type LedgerTx interface {
	// Layout returns the active layout; ok is false when none exists.
	Layout(ctx context.Context) (layout model.Layout, ok bool, err error)
	// ReplaceLayout swaps the active layout wholesale.
	ReplaceLayout(ctx context.Context, layout model.Layout) error
	// DeleteAllHolds empties the hold ledger.
	DeleteAllHolds(ctx context.Context) error
	// DeleteAllBookings empties the booking ledger.
	DeleteAllBookings(ctx context.Context) error

	// AnyBooked reports whether any of the seats is in some booking.
	AnyBooked(ctx context.Context, seats []model.Seat) (bool, error)
	// PurgeExpiredHolds deletes the holds on seat with expires_at <= now.
	PurgeExpiredHolds(ctx context.Context, seat model.Seat, now time.Time) (int64, error)
	// PurgeAllExpiredHolds deletes every hold with expires_at <= now and
	// returns the seats that were freed.
	PurgeAllExpiredHolds(ctx context.Context, now time.Time) ([]model.Seat, error)
	// InsertHold stores the hold only if the seat carries no hold row at all;
	// it returns false when one is already present.
	InsertHold(ctx context.Context, hold model.SeatHold) (bool, error)
	// DeleteHold deletes the hold on seat owned by userID if it is still
	// active at now; it returns false when no such hold exists.
	DeleteHold(ctx context.Context, seat model.Seat, userID string, now time.Time) (bool, error)
	// CountActiveHolds counts the holds owned by userID on the given seats
	// that are active at now.
	CountActiveHolds(ctx context.Context, seats []model.Seat, userID string, now time.Time) (int, error)
	// DeleteHolds deletes the holds owned by userID on the given seats.
	DeleteHolds(ctx context.Context, seats []model.Seat, userID string) error
	// UpsertBooking creates the booking for userID (setting booked_at to now)
	// or appends to it, deduplicating seats.  It returns false when one of the
	// seats turns out to be booked already.
	UpsertBooking(ctx context.Context, userID string, seats []model.Seat, now time.Time) (bool, error)
}

// dedupeSeats returns seats without repetitions, keeping the first occurrence.
func dedupeSeats(seats []model.Seat) []model.Seat {
	seen := make(map[model.Seat]struct{}, len(seats))
	out := make([]model.Seat, 0, len(seats))
	for _, s := range seats {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

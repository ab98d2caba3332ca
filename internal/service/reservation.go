package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/iliyamo/venue-seat-hold/internal/broadcast"
	"github.com/iliyamo/venue-seat-hold/internal/model"
	"github.com/iliyamo/venue-seat-hold/internal/repository"
)

// DefaultHoldDuration applies when Options.HoldDuration is not positive.
const DefaultHoldDuration = 60 * time.Second

const tracerName = "github.com/iliyamo/venue-seat-hold/internal/service"

// Options tunes a ReservationService.  Zero values pick the defaults.
type Options struct {
	HoldDuration time.Duration
	// Now is the clock used for hold expiry.
	Now    func() time.Time
	Logger *log.Logger
}

// ReservationService runs every mutation of the layout, hold and booking
// ledgers.  It keeps no locks of its own: concurrent requests for the same
// seat are serialized by the ledger's transactions, and a request that loses
// the race gets ErrConflict without being retried.
type ReservationService struct {
	ledger repository.Ledger
	bc     broadcast.Broadcaster
	hold   time.Duration
	now    func() time.Time
	log    *log.Logger
	tracer trace.Tracer
}

// NewReservationService builds the engine around a ledger and the channel
// that receives its broadcasts.  Both must be non-nil.
func NewReservationService(ledger repository.Ledger, bc broadcast.Broadcaster, opts Options) *ReservationService {
	if ledger == nil || bc == nil {
		panic("nil dependency passed to NewReservationService")
	}
	s := &ReservationService{
		ledger: ledger,
		bc:     bc,
		hold:   opts.HoldDuration,
		now:    opts.Now,
		log:    opts.Logger,
		tracer: otel.Tracer(tracerName),
	}
	if s.hold <= 0 {
		s.hold = DefaultHoldDuration
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = log.New("service")
	}
	return s
}

// HoldDuration returns the lifetime given to new holds.
func (s *ReservationService) HoldDuration() time.Duration { return s.hold }

// GenerateLayout replaces the layout and wipes every hold and booking in one
// transaction, then broadcasts the new grid in full.
func (s *ReservationService) GenerateLayout(ctx context.Context, rows, cols int) (err error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.GenerateLayout",
		trace.WithAttributes(attribute.Int("layout.rows", rows), attribute.Int("layout.cols", cols)))
	defer func() { endSpan(span, err) }()

	if rows < 1 || cols < 1 {
		return fmt.Errorf("%w: layout must have at least one row and one column", ErrValidation)
	}
	layout := model.Layout{Rows: rows, Cols: cols}
	_, err = s.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) (bool, error) {
		if err := tx.ReplaceLayout(ctx, layout); err != nil {
			return false, fmt.Errorf("replace layout: %w", err)
		}
		if err := tx.DeleteAllHolds(ctx); err != nil {
			return false, fmt.Errorf("clear holds: %w", err)
		}
		if err := tx.DeleteAllBookings(ctx); err != nil {
			return false, fmt.Errorf("clear bookings: %w", err)
		}
		return true, nil
	})
	if err != nil {
		s.log.Errorf("generate-layout: %v", err)
		return err
	}
	s.log.Infof("generate-layout: %dx%d, holds and bookings cleared", rows, cols)
	s.syncAll(ctx)
	return nil
}

// SeatView returns one entry per seat of the current layout as seen by
// userID.  Without a layout the result is empty.
func (s *ReservationService) SeatView(ctx context.Context, userID string) (views []model.SeatView, err error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.SeatView")
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	snap, err := s.ledger.Snapshot(ctx, s.now())
	if err != nil {
		s.log.Errorf("seat-view: %v", err)
		return nil, err
	}
	return seatViews(snap, userID), nil
}

// HoldSeat claims seat for userID until now plus the hold duration.  The
// seat must exist in the layout, must not be booked and must carry no
// active hold; an expired hold on it is purged first.
func (s *ReservationService) HoldSeat(ctx context.Context, userID string, seat model.Seat) (view model.SeatView, err error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.HoldSeat",
		trace.WithAttributes(attribute.String("seat.id", seat.ID())))
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return view, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	now := s.now()
	hold := model.SeatHold{Seat: seat, UserID: userID, ExpiresAt: now.Add(s.hold)}
	var missing, booked bool
	ok, err := s.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) (bool, error) {
		missing, booked = false, false
		layout, has, err := tx.Layout(ctx)
		if err != nil {
			return false, fmt.Errorf("load layout: %w", err)
		}
		if !has || !layout.Contains(seat) {
			missing = true
			return false, nil
		}
		if booked, err = tx.AnyBooked(ctx, []model.Seat{seat}); err != nil || booked {
			return false, err
		}
		if _, err := tx.PurgeExpiredHolds(ctx, seat, now); err != nil {
			return false, fmt.Errorf("purge expired holds: %w", err)
		}
		return tx.InsertHold(ctx, hold)
	})
	if err != nil {
		return view, s.txFailed("hold-seat", err)
	}
	switch {
	case missing:
		return view, fmt.Errorf("%w: seat %s is not in the layout", ErrNotFound, seat)
	case booked:
		return view, fmt.Errorf("%w: seat %s is booked", ErrConflict, seat)
	case !ok:
		return view, fmt.Errorf("%w: seat %s is held", ErrConflict, seat)
	}

	until := hold.ExpiresAt.UTC()
	s.publish(ctx, broadcast.NewSeatUpdate(broadcast.SeatUpdate{
		SeatID:     seat.ID(),
		Row:        seat.Row,
		Col:        seat.Col,
		Status:     broadcast.StateHeld,
		HoldUserID: userID,
		HoldUntil:  &until,
	}))
	fallback := model.SeatView{
		SeatID:          seat.ID(),
		Row:             seat.Row,
		Col:             seat.Col,
		Status:          model.StatusHeldByMe,
		RemainingHoldMs: s.hold.Milliseconds(),
	}
	return s.viewAfterCommit(ctx, userID, seat, fallback)
}

// ReleaseSeat drops the active hold userID has on seat.  Holds of other
// users are never touched; releasing one of them fails with ErrNotFound.
func (s *ReservationService) ReleaseSeat(ctx context.Context, userID string, seat model.Seat) (view model.SeatView, err error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.ReleaseSeat",
		trace.WithAttributes(attribute.String("seat.id", seat.ID())))
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return view, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	now := s.now()
	ok, err := s.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) (bool, error) {
		return tx.DeleteHold(ctx, seat, userID, now)
	})
	if err != nil {
		return view, s.txFailed("release-seat", err)
	}
	if !ok {
		return view, fmt.Errorf("%w: no active hold on %s for this user", ErrNotFound, seat)
	}

	s.publish(ctx, broadcast.NewSeatUpdate(broadcast.SeatUpdate{
		SeatID: seat.ID(),
		Row:    seat.Row,
		Col:    seat.Col,
		Status: broadcast.StateAvailable,
	}))
	fallback := model.SeatView{SeatID: seat.ID(), Row: seat.Row, Col: seat.Col, Status: model.StatusAvailable}
	return s.viewAfterCommit(ctx, userID, seat, fallback)
}

// BookSeats turns the caller's holds on seats into a permanent booking.  The
// seats must be one contiguous run in a single row, checked before the store
// is touched.  Inside the transaction every seat must carry an active hold
// of userID and none may be booked; the holds are consumed on success.
func (s *ReservationService) BookSeats(ctx context.Context, userID string, seats []model.Seat) (err error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.BookSeats",
		trace.WithAttributes(attribute.Int("seats.count", len(seats))))
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if !Contiguous(seats) {
		return ErrNotContiguous
	}
	now := s.now()
	var reason string
	ok, err := s.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) (bool, error) {
		reason = ""
		held, err := tx.CountActiveHolds(ctx, seats, userID, now)
		if err != nil {
			return false, fmt.Errorf("count holds: %w", err)
		}
		if held != len(seats) {
			reason = "not every seat is held by this user"
			return false, nil
		}
		taken, err := tx.AnyBooked(ctx, seats)
		if err != nil {
			return false, fmt.Errorf("check bookings: %w", err)
		}
		if taken {
			reason = "some seats are already booked"
			return false, nil
		}
		created, err := tx.UpsertBooking(ctx, userID, seats, now)
		if err != nil {
			return false, fmt.Errorf("upsert booking: %w", err)
		}
		if !created {
			reason = "some seats are already booked"
			return false, nil
		}
		if err := tx.DeleteHolds(ctx, seats, userID); err != nil {
			return false, fmt.Errorf("consume holds: %w", err)
		}
		return true, nil
	})
	if err != nil {
		return s.txFailed("book-seats", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrConflict, reason)
	}
	s.log.Infof("book-seats: user=%s seats=%v", userID, seats)
	s.syncAll(ctx)
	return nil
}

// SweepExpired purges every hold that has expired and announces each freed
// seat.  Expiry stays lazy without it; the sweep only makes abandoned seats
// show up as available sooner.
func (s *ReservationService) SweepExpired(ctx context.Context) (freed []model.Seat, err error) {
	ctx, span := s.tracer.Start(ctx, "ReservationService.SweepExpired")
	defer func() { endSpan(span, err) }()

	now := s.now()
	_, err = s.ledger.WithTx(ctx, func(ctx context.Context, tx repository.LedgerTx) (bool, error) {
		var err error
		freed, err = tx.PurgeAllExpiredHolds(ctx, now)
		return err == nil, err
	})
	if err != nil {
		return nil, s.txFailed("sweep", err)
	}
	for _, seat := range freed {
		s.publish(ctx, broadcast.NewSeatUpdate(broadcast.SeatUpdate{
			SeatID: seat.ID(),
			Row:    seat.Row,
			Col:    seat.Col,
			Status: broadcast.StateAvailable,
		}))
	}
	span.SetAttributes(attribute.Int("seats.freed", len(freed)))
	return freed, nil
}

// viewAfterCommit reads the seat back after a committed mutation.  The read
// is not isolated from later writes.  If it fails, the caller still gets
// the view implied by its own mutation.
func (s *ReservationService) viewAfterCommit(ctx context.Context, userID string, seat model.Seat, fallback model.SeatView) (model.SeatView, error) {
	snap, err := s.ledger.Snapshot(ctx, s.now())
	if err != nil {
		s.log.Warnf("seat-view: read after commit failed: %v", err)
		return fallback, nil
	}
	if !snap.HasLayout || !snap.Layout.Contains(seat) {
		return model.SeatView{}, fmt.Errorf("%w: seat %s is not in the layout", ErrNotFound, seat)
	}
	return indexSnapshot(snap).view(seat, userID), nil
}

// syncAll broadcasts the state of every seat.  Failures are logged only.
func (s *ReservationService) syncAll(ctx context.Context) {
	snap, err := s.ledger.Snapshot(ctx, s.now())
	if err != nil {
		s.log.Errorf("seats-sync: snapshot: %v", err)
		return
	}
	if !snap.HasLayout {
		return
	}
	s.publish(ctx, broadcast.NewSeatsSync(seatUpdates(snap)))
}

func (s *ReservationService) publish(ctx context.Context, ev broadcast.Event) {
	if err := s.bc.Publish(ctx, ev); err != nil {
		s.log.Warnf("broadcast %s: %v", ev.Name, err)
	}
}

// txFailed turns store contention into ErrConflict and logs everything else
// before handing it back unchanged.
func (s *ReservationService) txFailed(op string, err error) error {
	if errors.Is(err, repository.ErrWriteConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	s.log.Errorf("%s: %v", op, err)
	return err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

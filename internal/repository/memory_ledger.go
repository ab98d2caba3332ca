package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/venue-seat-hold/internal/model"
)

// MemoryLedger is a process-local Ledger.  Transactions are serialized by a
// single mutex and run against a private copy of the state that replaces
// the live state only on commit, which gives serializable isolation and
// all-or-nothing rollback.  It backs STORE_DRIVER=memory and the tests.
type MemoryLedger struct {
	mu    sync.Mutex
	state memState
}

type memBooking struct {
	bookedAt time.Time
	seats    map[model.Seat]struct{}
}

type memState struct {
	layout   *model.Layout
	holds    map[model.Seat]model.SeatHold
	bookings map[string]*memBooking
	bookedBy map[model.Seat]string
}

// NewMemoryLedger returns an empty ledger with no layout.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{state: memState{
		holds:    map[model.Seat]model.SeatHold{},
		bookings: map[string]*memBooking{},
		bookedBy: map[model.Seat]string{},
	}}
}

func (s memState) clone() memState {
	out := memState{
		holds:    make(map[model.Seat]model.SeatHold, len(s.holds)),
		bookings: make(map[string]*memBooking, len(s.bookings)),
		bookedBy: make(map[model.Seat]string, len(s.bookedBy)),
	}
	if s.layout != nil {
		l := *s.layout
		out.layout = &l
	}
	for k, v := range s.holds {
		out.holds[k] = v
	}
	for k, v := range s.bookedBy {
		out.bookedBy[k] = v
	}
	for k, v := range s.bookings {
		b := &memBooking{bookedAt: v.bookedAt, seats: make(map[model.Seat]struct{}, len(v.seats))}
		for seat := range v.seats {
			b.seats[seat] = struct{}{}
		}
		out.bookings[k] = b
	}
	return out
}

// WithTx runs fn against a copy of the state and publishes the copy only on
// a true outcome.
func (m *MemoryLedger) WithTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) (bool, error)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	staged := m.state.clone()
	ok, err := fn(ctx, &memTx{st: &staged})
	if err != nil || !ok {
		return false, err
	}
	m.state = staged
	return true, nil
}

// Snapshot copies out the layout, the holds active at now and the booked seats.
func (m *MemoryLedger) Snapshot(ctx context.Context, now time.Time) (model.Snapshot, error) {
	snap := model.Snapshot{TakenAt: now}
	if err := ctx.Err(); err != nil {
		return snap, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.layout == nil {
		return snap, nil
	}
	snap.Layout, snap.HasLayout = *m.state.layout, true
	for _, h := range m.state.holds {
		if h.Active(now) {
			snap.Holds = append(snap.Holds, h)
		}
	}
	for seat := range m.state.bookedBy {
		snap.Booked = append(snap.Booked, seat)
	}
	sortSeats(snap.Booked)
	sort.Slice(snap.Holds, func(i, j int) bool { return seatLess(snap.Holds[i].Seat, snap.Holds[j].Seat) })
	return snap, nil
}

// HoldCount returns the number of physically stored holds, expired ones
// included.
func (m *MemoryLedger) HoldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.holds)
}

// Booking returns the booking of userID with its seats sorted.
func (m *MemoryLedger) Booking(userID string) (model.Booking, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.state.bookings[userID]
	if !ok {
		return model.Booking{}, false
	}
	out := model.Booking{UserID: userID, BookedAt: b.bookedAt}
	for seat := range b.seats {
		out.Seats = append(out.Seats, seat)
	}
	sortSeats(out.Seats)
	return out, true
}

// memTx is only used while the ledger mutex is held.
type memTx struct {
	st *memState
}

func (t *memTx) Layout(context.Context) (model.Layout, bool, error) {
	if t.st.layout == nil {
		return model.Layout{}, false, nil
	}
	return *t.st.layout, true, nil
}

func (t *memTx) ReplaceLayout(_ context.Context, layout model.Layout) error {
	t.st.layout = &layout
	return nil
}

func (t *memTx) DeleteAllHolds(context.Context) error {
	t.st.holds = map[model.Seat]model.SeatHold{}
	return nil
}

func (t *memTx) DeleteAllBookings(context.Context) error {
	t.st.bookings = map[string]*memBooking{}
	t.st.bookedBy = map[model.Seat]string{}
	return nil
}

func (t *memTx) AnyBooked(_ context.Context, seats []model.Seat) (bool, error) {
	for _, s := range seats {
		if _, ok := t.st.bookedBy[s]; ok {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) PurgeExpiredHolds(_ context.Context, seat model.Seat, now time.Time) (int64, error) {
	if h, ok := t.st.holds[seat]; ok && !h.Active(now) {
		delete(t.st.holds, seat)
		return 1, nil
	}
	return 0, nil
}

func (t *memTx) PurgeAllExpiredHolds(_ context.Context, now time.Time) ([]model.Seat, error) {
	freed := []model.Seat{}
	for seat, h := range t.st.holds {
		if !h.Active(now) {
			delete(t.st.holds, seat)
			freed = append(freed, seat)
		}
	}
	sortSeats(freed)
	return freed, nil
}

func (t *memTx) InsertHold(_ context.Context, hold model.SeatHold) (bool, error) {
	if _, ok := t.st.holds[hold.Seat]; ok {
		return false, nil
	}
	t.st.holds[hold.Seat] = hold
	return true, nil
}

func (t *memTx) DeleteHold(_ context.Context, seat model.Seat, userID string, now time.Time) (bool, error) {
	h, ok := t.st.holds[seat]
	if !ok || h.UserID != userID || !h.Active(now) {
		return false, nil
	}
	delete(t.st.holds, seat)
	return true, nil
}

func (t *memTx) CountActiveHolds(_ context.Context, seats []model.Seat, userID string, now time.Time) (int, error) {
	n := 0
	for _, s := range dedupeSeats(seats) {
		if h, ok := t.st.holds[s]; ok && h.UserID == userID && h.Active(now) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) DeleteHolds(_ context.Context, seats []model.Seat, userID string) error {
	for _, s := range seats {
		if h, ok := t.st.holds[s]; ok && h.UserID == userID {
			delete(t.st.holds, s)
		}
	}
	return nil
}

func (t *memTx) UpsertBooking(_ context.Context, userID string, seats []model.Seat, now time.Time) (bool, error) {
	seats = dedupeSeats(seats)
	if len(seats) == 0 {
		return true, nil
	}
	for _, s := range seats {
		if _, taken := t.st.bookedBy[s]; taken {
			return false, nil
		}
	}
	b, ok := t.st.bookings[userID]
	if !ok {
		b = &memBooking{bookedAt: now, seats: map[model.Seat]struct{}{}}
		t.st.bookings[userID] = b
	}
	for _, s := range seats {
		b.seats[s] = struct{}{}
		t.st.bookedBy[s] = userID
	}
	return true, nil
}

func seatLess(a, b model.Seat) bool {
	if a.Row != b.Row {
		return a.Row < b.Row
	}
	return a.Col < b.Col
}

func sortSeats(seats []model.Seat) {
	sort.Slice(seats, func(i, j int) bool { return seatLess(seats[i], seats[j]) })
}

// Package broadcast fans seat events out to connected observers.  It keeps
// no history: an observer that connects after an event never sees it and
// must pull the seat view instead.
package broadcast

import (
	"context"
	"sync"
	"time"
)

// Event names as seen by observers.
const (
	EventSeatUpdate = "seatUpdate"
	EventSeatsSync  = "seatsSync"
)

// SeatState is the viewer-independent status carried by broadcasts.
type SeatState string

const (
	StateAvailable SeatState = "available"
	StateHeld      SeatState = "held"
	StateBooked    SeatState = "booked"
)

// SeatUpdate describes one seat.  HoldUserID and HoldUntil are only set for
// held seats.
//
// Fields:
//  SeatID     – display identifier, e.g. "B4".
//  Row, Col   – 1-based grid position.
//  Status     – available, held or booked.
//  HoldUserID – owner of the active hold.
//  HoldUntil  – expiry of the active hold.
type SeatUpdate struct {
	SeatID     string     `json:"seatId"`
	Row        int        `json:"row"`
	Col        int        `json:"col"`
	Status     SeatState  `json:"status"`
	HoldUserID string     `json:"holdUserId,omitempty"`
	HoldUntil  *time.Time `json:"holdUntil,omitempty"`
}

// Event is the envelope written to every observer.  Data is a SeatUpdate
// for seatUpdate and a []SeatUpdate for seatsSync.
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data"`
}

// NewSeatUpdate wraps a single seat change.
func NewSeatUpdate(u SeatUpdate) Event {
	return Event{Name: EventSeatUpdate, Data: u}
}

// NewSeatsSync wraps the state of every seat in the layout.
func NewSeatsSync(seats []SeatUpdate) Event {
	if seats == nil {
		seats = []SeatUpdate{}
	}
	return Event{Name: EventSeatsSync, Data: seats}
}

// Broadcaster delivers an event to every currently connected observer.
// Delivery is fire-and-forget; an error only means the event did not leave
// this process.
type Broadcaster interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Broadcaster.
func (Nop) Publish(context.Context, Event) error { return nil }

// Recorder keeps every published event in memory.  It is meant for tests
// and for wiring checks in development.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish implements Broadcaster.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the events published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset forgets the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

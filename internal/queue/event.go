// Package queue carries seat events between service instances over a
// RabbitMQ fanout exchange.  Every instance publishes the events its engine
// produces and relays everything it receives into its own websocket hub, so
// observers see the same stream whichever instance they are connected to.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/venue-seat-hold/internal/broadcast"
)

// ErrUnknownEvent is returned for envelopes naming an event this version
// does not relay.
var ErrUnknownEvent = errors.New("unknown seat event")

// SeatEventMessage is the envelope published on the seat events exchange.
// Data is kept raw so relaying never re-interprets the payload.
type SeatEventMessage struct {
	Origin string          `json:"origin"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	SentAt time.Time       `json:"sent_at"`
}

func encodeEvent(origin string, ev broadcast.Event, now time.Time) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", ev.Name, err)
	}
	return json.Marshal(SeatEventMessage{
		Origin: origin,
		Event:  ev.Name,
		Data:   data,
		SentAt: now.UTC(),
	})
}

func decodeEvent(body []byte) (SeatEventMessage, error) {
	var msg SeatEventMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return msg, fmt.Errorf("unmarshal: %w", err)
	}
	switch msg.Event {
	case broadcast.EventSeatUpdate, broadcast.EventSeatsSync:
	default:
		return msg, fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Event)
	}
	if len(msg.Data) == 0 {
		return msg, fmt.Errorf("%s without data", msg.Event)
	}
	return msg, nil
}

// BroadcastEvent rebuilds the broadcast event, payload untouched.
func (m SeatEventMessage) BroadcastEvent() broadcast.Event {
	return broadcast.Event{Name: m.Event, Data: m.Data}
}

package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/venue-seat-hold/internal/broadcast"
)

// Publisher implements broadcast.Broadcaster on a fanout exchange.  After a
// failed publish the connection is dropped and redialled by the next call.
// Events are transient; observers resynchronise from the seat view.
type Publisher struct {
	url      string
	exchange string
	origin   string
	log      *log.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher dials the broker and declares the exchange so that
// misconfiguration shows up at startup.
func NewPublisher(url, exchange, origin string, logger *log.Logger) (*Publisher, error) {
	p := &Publisher{url: url, exchange: exchange, origin: origin, log: logger}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connectLocked() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Publish sends ev to every instance bound to the exchange, this one
// included.
func (p *Publisher) Publish(ctx context.Context, ev broadcast.Event) error {
	body, err := encodeEvent(p.origin, ev, time.Now())
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		p.resetLocked()
		if err := p.connectLocked(); err != nil {
			return err
		}
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Name,
		Body:         body,
	})
	if err != nil {
		p.log.Warnf("seat-events: publish %s failed: %v", ev.Name, err)
		p.resetLocked()
		return fmt.Errorf("publish %s: %w", ev.Name, err)
	}
	return nil
}

// Close releases the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

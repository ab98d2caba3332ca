package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labstack/gommon/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/venue-seat-hold/internal/broadcast"
)

const maxBackoff = 30 * time.Second

// StartSeatEventConsumer binds an exclusive, auto-deleted queue to the seat
// events exchange and forwards every event to sink, normally the local
// websocket hub.  It reconnects with exponential backoff and only returns
// once ctx is cancelled.
func StartSeatEventConsumer(ctx context.Context, url, exchange string, sink broadcast.Broadcaster, logger *log.Logger) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warnf("seat-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, exchange, sink, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warnf("seat-consumer: consume loop ended: %v; reconnecting", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, exchange string, sink broadcast.Broadcaster, logger *log.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warnf("seat-consumer: set QoS failed: %v", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		return err
	}
	// one private queue per instance; it disappears with the connection
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	logger.Infof("seat-consumer: relaying %s through %s", exchange, q.Name)

	for d := range msgs {
		if err := handleMessage(ctx, d.Body, sink); err != nil {
			logger.Warnf("seat-consumer: handle message failed: %v", err)
			_ = d.Nack(false, false) // drop it, a requeue would loop
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(ctx context.Context, body []byte, sink broadcast.Broadcaster) error {
	msg, err := decodeEvent(body)
	if err != nil {
		return err
	}
	return sink.Publish(ctx, msg.BroadcastEvent())
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

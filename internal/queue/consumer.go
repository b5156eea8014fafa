package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/showtime-chatbot/internal/logger"
)

// Ledger appends one line per confirmed booking to a file.  Confirmation
// codes are not stored anywhere else, so this file is the only place a
// code can be traced back to a showtime.
type Ledger struct {
	path string
	mu   sync.Mutex
}

func NewLedger(path string) *Ledger { return &Ledger{path: path} }

// Append writes ev as a single human readable line.
func (l *Ledger) Append(ev BookingConfirmedEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir ledger dir")
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "open ledger")
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Booking confirmed | code=%s | movie=%q | theater=%q | date=%s | time=%s | language=%q | tickets=%d | remaining=%d | event_id=%s\n",
		ev.ConfirmedAt, ev.ConfirmationCode, ev.MovieName, ev.TheaterLocation, ev.Date, ev.Time, ev.Language, ev.Tickets, ev.RemainingSeats, ev.EventID)
	if _, err := f.WriteString(line); err != nil {
		return errors.Wrap(err, "write ledger")
	}
	return nil
}

// HandleMessage decodes a delivery body and appends it to the ledger.
func (l *Ledger) HandleMessage(body []byte) error {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return errors.Wrap(err, "unmarshal")
	}
	if ev.ConfirmationCode == "" {
		return errors.New("event without confirmation code")
	}
	return l.Append(ev)
}

// StartBookingConsumer consumes booking.confirmed and feeds the ledger
// until ctx is cancelled.  Broker outages are retried with exponential
// backoff capped at 30s.  Bad messages are rejected without requeue.
func StartBookingConsumer(ctx context.Context, url string, ledger *Ledger) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn().Err(err).Dur("retry_in", backoff).Msg("booking-consumer: failed to dial broker")
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, ledger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn().Err(err).Msg("booking-consumer: consume loop ended, reconnecting")
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, ledger *Ledger) error {
	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "channel open")
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn().Err(err).Msg("booking-consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(BookingQueueName, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "queue declare")
	}
	msgs, err := ch.Consume(BookingQueueName, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "queue consume")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := ledger.HandleMessage(d.Body); err != nil {
				logger.Error().Err(err).Msg("booking-consumer: handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
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

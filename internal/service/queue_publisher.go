package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/showtime-chatbot/internal/logger"
	"github.com/iliyamo/showtime-chatbot/internal/queue"
)

// EventPublisher receives booking confirmations.  Failures are logged by
// the booking service and never change the booking outcome.
type EventPublisher interface {
	PublishBookingConfirmed(ctx context.Context, event queue.BookingConfirmedEvent) error
}

// AMQPPublisher publishes to the booking.confirmed queue on RabbitMQ.  A
// connection is opened per message; bookings are rare enough that a
// long-lived channel is not worth the reconnect handling.
type AMQPPublisher struct {
	url string
}

func NewAMQPPublisher(url string) *AMQPPublisher { return &AMQPPublisher{url: url} }

// PublishBookingConfirmed implements EventPublisher.  Messages are
// persistent and the queue is declared durable.
func (p *AMQPPublisher) PublishBookingConfirmed(ctx context.Context, event queue.BookingConfirmedEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return errors.Wrap(err, "rabbitmq: dial")
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return errors.Wrap(err, "rabbitmq: channel open")
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queue.BookingQueueName, true, false, false, false, nil); err != nil {
		return errors.Wrap(err, "rabbitmq: queue declare")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "rabbitmq: marshal event")
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue.BookingQueueName, false, false, pub); err != nil {
		return errors.Wrap(err, "rabbitmq: publish")
	}
	logger.Debug().Str("code", event.ConfirmationCode).Msg("booking.confirmed published")
	return nil
}

// LedgerPublisher writes events straight to the ledger, for setups without
// a broker.
type LedgerPublisher struct {
	Ledger *queue.Ledger
}

func (p LedgerPublisher) PublishBookingConfirmed(_ context.Context, event queue.BookingConfirmedEvent) error {
	return p.Ledger.Append(event)
}

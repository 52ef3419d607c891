package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	DefaultExchange = "rsvp"
	ExchangeKind    = "topic"

	RoutingKeyRegistrationCreated   = "registration.created"
	RoutingKeyRegistrationCancelled = "registration.cancelled"
)

// Message is the JSON body published for registration changes.
type Message struct {
	Type           string    `json:"type"`
	RegistrationID string    `json:"registrationId"`
	EventID        string    `json:"eventId"`
	EventName      string    `json:"eventName"`
	EventDate      time.Time `json:"eventDate"`
	UserID         string    `json:"userId"`
	UserEmail      string    `json:"userEmail"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher announces registration changes on a RabbitMQ topic exchange. It
// implements registrations.Notifier.
type Publisher struct {
	// sem serializes use of the channel; one slot, acquired under ctx.
	sem      chan struct{}
	conn     *amqp.Connection
	channel  channel
	exchange string
	logger   zerolog.Logger
	now      func() time.Time
}

// Dial connects, opens a channel and declares the durable topic exchange.
func Dial(url, exchange string, logger zerolog.Logger) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, ExchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq exchange declare: %w", err)
	}

	p := newPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		sem:      make(chan struct{}, 1),
		channel:  ch,
		exchange: exchange,
		logger:   logger.With().Str("component", "broker").Str("exchange", exchange).Logger(),
		now:      time.Now,
	}
}

func (p *Publisher) RegistrationConfirmed(ctx context.Context, notice registrations.Notice) error {
	return p.publish(ctx, RoutingKeyRegistrationCreated, notice)
}

func (p *Publisher) RegistrationCancelled(ctx context.Context, notice registrations.Notice) error {
	return p.publish(ctx, RoutingKeyRegistrationCancelled, notice)
}

func (p *Publisher) publish(ctx context.Context, routingKey string, notice registrations.Notice) error {
	now := p.now().UTC()
	body, err := json.Marshal(Message{
		Type:           routingKey,
		RegistrationID: notice.RegistrationID,
		EventID:        notice.Event.ID,
		EventName:      notice.Event.Name,
		EventDate:      notice.Event.Date,
		UserID:         notice.Attendee.ID,
		UserEmail:      notice.Attendee.Email,
		OccurredAt:     now,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// amqp channels are not safe for concurrent publishing. A publish stuck
	// on a blocked connection keeps the slot, so later ones give up at ctx.
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", routingKey, ctx.Err())
	}
	defer func() { <-p.sem }()

	if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    notice.RegistrationID,
		Timestamp:    now,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.logger.Debug().Str("routing_key", routingKey).Str("registration_id", notice.RegistrationID).Msg("published")
	return nil
}

func (p *Publisher) Close() error {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	var firstErr error
	if p.channel != nil {
		firstErr = p.channel.Close()
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

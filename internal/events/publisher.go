package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Conversly/messenger-relay/internal/config"
	"github.com/Conversly/messenger-relay/internal/core"
	"github.com/Conversly/messenger-relay/internal/utils"
)

const (
	TypeInboundMessage  = "inbox.message.inbound.v1"
	TypeOutboundMessage = "inbox.message.outbound.v1"
)

// Meta describes one emitted event.
type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"` // also the routing key
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// Publisher is the event sink used by the pipeline. Close releases the broker connection.
type Publisher interface {
	core.EventPublisher
	Close() error
}

// NewPublisher dials RabbitMQ when AMQP_URL is set, otherwise returns a no-op publisher.
func NewPublisher(cfg config.AMQP, producer string) (Publisher, error) {
	if cfg.URL == "" {
		utils.Zlog.Info("AMQP_URL not set, event publishing disabled")
		return NoopPublisher{}, nil
	}
	return NewRabbitPublisher(cfg.URL, cfg.Exchange, producer)
}

// RabbitPublisher emits message events to a durable topic exchange.
type RabbitPublisher struct {
	conn     *amqp.Connection
	exchange string
	producer string
}

func NewRabbitPublisher(url, exchange, producer string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open broker channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	utils.Zlog.Info("Event publisher connected", zap.String("exchange", exchange))
	return &RabbitPublisher{conn: conn, exchange: exchange, producer: producer}, nil
}

func (p *RabbitPublisher) PublishMessage(ctx context.Context, evt core.MessageEvent) error {
	env := NewEnvelope(evt, p.producer)
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open broker channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, p.exchange, env.Meta.Type, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: *env.Meta.CorrelationID,
		Timestamp:     env.Meta.Time,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", env.Meta.Type, err)
	}

	utils.Zlog.Debug("Event published",
		zap.String("type", env.Meta.Type),
		zap.String("message_id", evt.MessageID))
	return nil
}

func (p *RabbitPublisher) Close() error {
	return p.conn.Close()
}

// NewEnvelope wraps evt with a fresh id. The conversation id is the correlation id so
// consumers can group events per thread.
func NewEnvelope(evt core.MessageEvent, producer string) Envelope {
	eventType := TypeInboundMessage
	if evt.Direction == core.DirectionOutbound {
		eventType = TypeOutboundMessage
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	correlation := evt.ConversationID
	if correlation == "" {
		correlation = id.String()
	}

	meta := Meta{
		ID:            id.String(),
		CorrelationID: &correlation,
		Time:          time.Now().UTC(),
		Type:          eventType,
	}
	if producer != "" {
		meta.Producer = &producer
	}
	return Envelope{Meta: meta, Data: evt}
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

func (NoopPublisher) PublishMessage(ctx context.Context, evt core.MessageEvent) error { return nil }

func (NoopPublisher) Close() error { return nil }

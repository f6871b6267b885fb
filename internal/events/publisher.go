package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/config"
	"github.com/nguyenvanhieu3603/Fluffy-project-sub001/internal/models"
)

// EventType identifies an order lifecycle event.
type EventType string

const (
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderPaid          EventType = "order.paid"
	EventTypeOrderCancelled     EventType = "order.cancelled"
)

// OrderEvent is the envelope written to the orders topic, keyed by order id
// so consumers see one order's events in sequence.
type OrderEvent struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	OrderID   string          `json:"order_id"`
	BuyerID   string          `json:"buyer_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// KafkaPublisher publishes order events. Publishing is fire-and-forget from
// the caller's point of view; failures are logged, never propagated into the
// request path.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

func NewKafkaPublisher(cfg config.KafkaConfig, logger zerolog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.OrdersTopic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer: writer,
		logger: logger.With().Str("component", "event-publisher").Logger(),
	}
}

func (p *KafkaPublisher) OrderCreated(ctx context.Context, order *models.Order) error {
	return p.publishOrder(ctx, EventTypeOrderCreated, order)
}

func (p *KafkaPublisher) OrderPaid(ctx context.Context, order *models.Order) error {
	return p.publishOrder(ctx, EventTypeOrderPaid, order)
}

func (p *KafkaPublisher) OrderCancelled(ctx context.Context, order *models.Order) error {
	return p.publishOrder(ctx, EventTypeOrderCancelled, order)
}

func (p *KafkaPublisher) OrderStatusChanged(ctx context.Context, order *models.Order, previous models.OrderStatus) error {
	payload := struct {
		Order          *models.Order      `json:"order"`
		PreviousStatus models.OrderStatus `json:"previous_status"`
		NewStatus      models.OrderStatus `json:"new_status"`
	}{order, previous, order.Status}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.publish(ctx, EventTypeOrderStatusChanged, order, data)
}

func (p *KafkaPublisher) publishOrder(ctx context.Context, eventType EventType, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return p.publish(ctx, eventType, order, data)
}

func (p *KafkaPublisher) publish(ctx context.Context, eventType EventType, order *models.Order, data []byte) error {
	event := OrderEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		OrderID:   order.ID,
		BuyerID:   order.BuyerID,
		Data:      data,
		Timestamp: time.Now(),
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: eventData,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", string(event.Type)).
			Str("order_id", event.OrderID).
			Msg("failed to publish event")
		return err
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

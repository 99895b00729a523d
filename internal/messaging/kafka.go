// Package messaging publishes order execution events for downstream
// consumers (analytics, notifications). Publishing is best-effort and
// never blocks or fails a trade.
package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Tipukhan564/Commodities-Exchange/pkg/models"
)

// OrderEvent is the wire form of an executed order
type OrderEvent struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	CommodityID string    `json:"commodity_id"`
	Side        string    `json:"side"`
	Quantity    string    `json:"quantity"`
	Price       string    `json:"price"`
	Status      string    `json:"status"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// Publisher publishes order events
type Publisher interface {
	PublishOrderExecuted(ctx context.Context, order *models.Order)
	Close() error
}

// KafkaPublisher writes order events to a Kafka topic
type KafkaPublisher struct {
	logger *zap.Logger
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for the given brokers and topic
func NewKafkaPublisher(logger *zap.Logger, brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaPublisher{logger: logger, writer: writer}
}

// PublishOrderExecuted emits an order event, logging on failure
func (p *KafkaPublisher) PublishOrderExecuted(ctx context.Context, order *models.Order) {
	event := OrderEvent{
		OrderID:     order.ID.String(),
		UserID:      order.UserID.String(),
		CommodityID: order.CommodityID.String(),
		Side:        string(order.Side),
		Quantity:    order.Quantity.String(),
		Price:       order.Price.StringFixed(2),
		Status:      string(order.Status),
		ExecutedAt:  order.CreatedAt,
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal order event", zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(order.UserID.String()),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("Failed to publish order event",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events; used when Kafka is not configured
type NopPublisher struct{}

// PublishOrderExecuted discards the event
func (NopPublisher) PublishOrderExecuted(ctx context.Context, order *models.Order) {}

// Close is a no-op
func (NopPublisher) Close() error { return nil }

// Package events publishes post-commit sale events for downstream reporting.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	SaleCreated     = "sale.created"
	SaleCancelled   = "sale.cancelled"
	SaleUpdated     = "sale.updated"
	SaleItemAdded   = "sale.item_added"
	SaleItemUpdated = "sale.item_updated"
	SaleItemRemoved = "sale.item_removed"
	InvoiceCreated  = "invoice.created"
	InvoiceUpdated  = "invoice.updated"
	InvoicePaid     = "invoice.paid"
)

// Event is the envelope written to the topic.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	CompanyID  int64     `json:"company_id"`
	SaleID     int64     `json:"sale_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data,omitempty"`
}

// New stamps an event with an id and time.
func New(kind string, companyID, saleID int64, data any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       kind,
		CompanyID:  companyID,
		SaleID:     saleID,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Publisher emits events. Implementations are used after commit only.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single topic, keyed by company so one
// company's events stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaWriter builds the writer used by KafkaPublisher.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

// NewKafkaPublisher wraps a writer.
func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// Publish serialises and writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", event.Type, err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.CompanyID, 10)),
		Value: body,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID.String())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop discards events; used when no brokers are configured.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) error { return nil }

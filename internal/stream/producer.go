// Package stream publishes department-level ticket events to Kafka so that
// downstream consumers (display boards, analytics) can follow the queue
// without polling the API.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// TicketEvent is the on-topic representation of a queue event.
type TicketEvent struct {
	DepartmentID string    `json:"department_id"`
	Event        string    `json:"event"`
	Payload      any       `json:"payload"`
	EmittedAt    time.Time `json:"emitted_at"`
}

// Producer writes ticket events to a Kafka topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a producer for the given brokers and topic.
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return &Producer{writer: writer}
}

// Publish writes one event, keyed by department so a partition preserves
// per-department ordering.
func (p *Producer) Publish(ctx context.Context, departmentID, event string, payload any) error {
	value, err := json.Marshal(TicketEvent{
		DepartmentID: departmentID,
		Event:        event,
		Payload:      payload,
		EmittedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ticket event: %w", err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(departmentID),
		Value: value,
	})
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

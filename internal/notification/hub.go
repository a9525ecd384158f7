package notification

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Publisher mirrors department events onto an event stream. Implemented by
// the Kafka producer; nil-safe to leave unconfigured.
type Publisher interface {
	Publish(ctx context.Context, departmentID, event string, payload any) error
}

// Hub is the sink wired into the queue engine. It fans events out to the
// web push worker pool and, when configured, mirrors department-wide events
// onto the stream publisher.
type Hub struct {
	pool      *WorkerPool
	publisher Publisher
	logger    *logrus.Logger
}

// NewHub creates a hub. publisher may be nil.
func NewHub(pool *WorkerPool, publisher Publisher, logger *logrus.Logger) *Hub {
	return &Hub{pool: pool, publisher: publisher, logger: logger}
}

// EmitToDepartment pushes to the department's display boards and mirrors the
// event onto the stream.
func (h *Hub) EmitToDepartment(ctx context.Context, departmentID, event string, payload any) {
	h.pool.EmitToDepartment(ctx, departmentID, event, payload)
	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, departmentID, event, payload); err != nil {
			h.logger.WithError(err).WithField("department", departmentID).Warn("failed to publish ticket event")
		}
	}
}

// EmitToUser pushes to a single patient's subscriptions.
func (h *Hub) EmitToUser(ctx context.Context, patientID, event string, payload any) {
	h.pool.EmitToUser(ctx, patientID, event, payload)
}

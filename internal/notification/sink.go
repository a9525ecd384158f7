package notification

import "context"

// Event names pushed over the sink.
const (
	EventTokenCreated  = "token.created"
	EventTokenCalled   = "token.called"
	EventQueuePosition = "queue.position"
)

// Sink is the push channel the queue engine announces events on.
// Delivery is best-effort: implementations log failures and never return
// them, since announcing a queue update is not safety-critical.
type Sink interface {
	EmitToDepartment(ctx context.Context, departmentID, event string, payload any)
	EmitToUser(ctx context.Context, patientID, event string, payload any)
}

// NopSink discards every event. Useful in tests and when push is disabled.
type NopSink struct{}

func (NopSink) EmitToDepartment(context.Context, string, string, any) {}
func (NopSink) EmitToUser(context.Context, string, string, any)      {}

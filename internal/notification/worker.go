package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"hospital-queue-backend/internal/model"
)

// Sender defines the interface for sending a web push notification.
type Sender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of Sender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// job addresses one push either to a patient or to a department board.
type job struct {
	patientID    string
	departmentID string
	body         []byte
}

// WorkerPool fans queue events out to web push subscriptions.
type WorkerPool struct {
	size    int
	jobs    chan job
	db      *gorm.DB
	webpush *webpush.Options
	sender  Sender
	logger  *logrus.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, db *gorm.DB, webpushOptions *webpush.Options, logger *logrus.Logger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan job, size*8),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		logger:  logger,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.logger.WithField("worker", id).Debug("push worker started")
	for {
		select {
		case j := <-wp.jobs:
			wp.deliver(ctx, j)
		case <-ctx.Done():
			wp.logger.WithField("worker", id).Debug("push worker shutting down")
			return
		}
	}
}

// EmitToUser queues a push to every subscription of a patient.
func (wp *WorkerPool) EmitToUser(ctx context.Context, patientID, event string, payload any) {
	wp.dispatch(job{patientID: patientID, body: wp.encode(event, payload)})
}

// EmitToDepartment queues a push to every display-board subscription of a
// department.
func (wp *WorkerPool) EmitToDepartment(ctx context.Context, departmentID, event string, payload any) {
	wp.dispatch(job{departmentID: departmentID, body: wp.encode(event, payload)})
}

// dispatch never blocks the caller: when the queue is full the event is
// dropped, which is acceptable for best-effort position updates.
func (wp *WorkerPool) dispatch(j job) {
	select {
	case wp.jobs <- j:
	default:
		wp.logger.Warn("push queue full, dropping event")
	}
}

func (wp *WorkerPool) encode(event string, payload any) []byte {
	body, err := json.Marshal(map[string]any{"event": event, "data": payload})
	if err != nil {
		wp.logger.WithError(err).Error("failed to encode push payload")
		return nil
	}
	return body
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan job {
	return wp.jobs
}

func (wp *WorkerPool) deliver(ctx context.Context, j job) {
	if j.body == nil {
		return
	}

	var subscriptions []model.PushSubscription
	q := wp.db.WithContext(ctx)
	if j.patientID != "" {
		q = q.Where("patient_id = ?", j.patientID)
	} else {
		q = q.Where("department_id = ?", j.departmentID)
	}
	if err := q.Find(&subscriptions).Error; err != nil {
		wp.logger.WithError(err).Error("failed to fetch push subscriptions")
		return
	}

	for _, sub := range subscriptions {
		wp.send(ctx, sub, j.body)
	}
}

// send pushes a single notification and prunes subscriptions the push
// service reports as gone.
func (wp *WorkerPool) send(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.logger.WithError(err).WithField("endpoint", sub.Endpoint).Warn("failed to send push")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.logger.WithField("endpoint", sub.Endpoint).Info("subscription expired, deleting")
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.logger.WithError(err).Error("failed to delete expired subscription")
		}
	}
}

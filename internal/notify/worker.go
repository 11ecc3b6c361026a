package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/clinicvoice/booking-engine/internal/events"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

const (
	receiveBatchSize   = 10
	receiveWaitSeconds = 5
)

// Worker consumes notification tasks from the queue and hands them to the
// bridge. Tasks that fail stay on the queue for redelivery.
type Worker struct {
	queue   Queue
	bridge  *Bridge
	logger  *logging.Logger
	workers int
}

func NewWorker(queue Queue, bridge *Bridge, logger *logging.Logger, workers int) *Worker {
	if queue == nil {
		panic("notify: queue required")
	}
	if bridge == nil {
		panic("notify: bridge required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if workers <= 0 {
		workers = 2
	}
	return &Worker{
		queue:   queue,
		bridge:  bridge,
		logger:  logger,
		workers: workers,
	}
}

// Start runs the consumer loops until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	w.logger.Info("notification worker started", "worker", id)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("notification worker stopped", "worker", id)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, receiveBatchSize, receiveWaitSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue receive failed", "error", err, "worker", id)
			continue
		}

		for _, msg := range messages {
			if err := w.handle(ctx, msg); err != nil {
				w.logger.Error("notification task failed", "error", err, "message_id", msg.ID)
				continue
			}
			if err := w.queue.Delete(ctx, msg.ReceiptHandle); err != nil {
				w.logger.Error("failed to delete queue message", "error", err, "message_id", msg.ID)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg queueMessage) error {
	t, err := decodeTask(msg.Body)
	if err != nil {
		// Malformed bodies can never succeed; log and let Delete drop them.
		w.logger.Error("dropping malformed notification task", "error", err, "message_id", msg.ID)
		return nil
	}

	switch t.Type {
	case events.TypeAppointmentConfirmed:
		var p events.AppointmentConfirmedPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			w.logger.Error("dropping task with bad payload", "error", err, "task_id", t.ID, "type", t.Type)
			return nil
		}
		return w.bridge.SendConfirmationSMS(ctx, p)
	case events.TypeHotLead:
		var p events.HotLeadPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			w.logger.Error("dropping task with bad payload", "error", err, "task_id", t.ID, "type", t.Type)
			return nil
		}
		return w.bridge.MaybeSendHotLeadAlert(ctx, p)
	default:
		return fmt.Errorf("notify: unknown task type %q", t.Type)
	}
}

package notify

import (
	"context"

	"github.com/clinicvoice/booking-engine/internal/events"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

// Publisher moves committed outbox entries onto the notification queue. It is
// the delivery handler the outbox deliverer drains through.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("notify: queue required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

var _ events.DeliveryHandler = (*Publisher)(nil)

// Handle enqueues one outbox entry as a notification task. An error leaves
// the entry undelivered so the next outbox poll retries it.
func (p *Publisher) Handle(ctx context.Context, entry events.OutboxEntry) error {
	body, err := encodeTask(task{
		ID:       entry.ID.String(),
		Type:     entry.Type,
		TenantID: entry.TenantID,
		Payload:  entry.Payload,
	})
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return err
	}
	p.logger.Debug("notification task enqueued", "event_id", entry.ID, "type", entry.Type, "tenant_id", entry.TenantID)
	return nil
}

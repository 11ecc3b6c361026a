package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicvoice/booking-engine/internal/clock"
	"github.com/clinicvoice/booking-engine/internal/contacts"
	"github.com/clinicvoice/booking-engine/internal/events"
	"github.com/clinicvoice/booking-engine/internal/hold"
	"github.com/clinicvoice/booking-engine/internal/observability/metrics"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

var bookingTracer = otel.Tracer("booking.internal.booking")

// ErrTransactionConflict is surfaced after retryable database contention
// exhausts its retry budget.
var ErrTransactionConflict = errors.New("booking: transaction conflict, try again")

const (
	defaultDurationMinutes = 30
	defaultMaxRetries      = 3
)

// Confirmer converts verified holds into appointments.
type Confirmer struct {
	store    *Store
	holds    *hold.Store
	contacts *contacts.Store
	outbox   *events.OutboxStore
	clock    clock.Clock
	logger   *logging.Logger
	metrics  *metrics.BookingMetrics

	durationMinutes int
	maxRetries      int
}

type ConfirmerOption func(*Confirmer)

func WithDurationMinutes(n int) ConfirmerOption {
	return func(c *Confirmer) {
		if n > 0 {
			c.durationMinutes = n
		}
	}
}

func WithMaxRetries(n int) ConfirmerOption {
	return func(c *Confirmer) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

func WithClock(clk clock.Clock) ConfirmerOption {
	return func(c *Confirmer) {
		if clk != nil {
			c.clock = clk
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) ConfirmerOption {
	return func(c *Confirmer) { c.metrics = m }
}

func NewConfirmer(store *Store, holds *hold.Store, contactStore *contacts.Store, outbox *events.OutboxStore, logger *logging.Logger, opts ...ConfirmerOption) *Confirmer {
	if store == nil {
		panic("booking: store required")
	}
	if holds == nil {
		panic("booking: hold store required")
	}
	if contactStore == nil {
		panic("booking: contact store required")
	}
	if outbox == nil {
		panic("booking: outbox store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Confirmer{
		store:           store,
		holds:           holds,
		contacts:        contactStore,
		outbox:          outbox,
		clock:           clock.System{},
		logger:          logger,
		durationMinutes: defaultDurationMinutes,
		maxRetries:      defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Confirm turns a verified hold into an appointment in one transaction:
// insert-or-find the contact, insert the appointment, flip the hold to
// confirmed, and stage the confirmation event in the outbox. Either all of
// it commits or none of it does; on failure the hold stays verified and the
// call is retryable.
//
// Confirming an already-confirmed hold returns the existing appointment so
// duplicate tool calls from the voice agent are harmless.
func (c *Confirmer) Confirm(ctx context.Context, tenantID string, holdID uuid.UUID, serviceType string) (*Appointment, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.confirm")
	defer span.End()
	span.SetAttributes(attribute.String("booking.tenant_id", tenantID))

	start := c.clock.Now()
	var appt *Appointment
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		appt, err = c.confirmOnce(ctx, tenantID, holdID, serviceType)
		if err == nil || !retryableConflict(err) {
			break
		}
		c.logger.Warn("confirm transaction conflict, retrying", "tenant_id", tenantID, "hold_id", holdID, "attempt", attempt+1)
	}
	if err != nil {
		if retryableConflict(err) {
			err = ErrTransactionConflict
		}
		span.RecordError(err)
		return nil, err
	}

	c.metrics.ObserveConfirmLatency(c.clock.Now().Sub(start).Seconds())
	c.logger.Info("booking confirmed",
		"tenant_id", tenantID,
		"hold_id", holdID,
		"appointment_id", appt.ID,
		"scheduled_at", appt.ScheduledAt,
	)
	return appt, nil
}

func (c *Confirmer) confirmOnce(ctx context.Context, tenantID string, holdID uuid.UUID, serviceType string) (*Appointment, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("booking: begin confirm tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	h, err := c.holds.GetForUpdate(ctx, tx, tenantID, holdID)
	if err != nil {
		return nil, err
	}
	switch h.Status {
	case hold.StatusVerified:
	case hold.StatusConfirmed:
		return c.store.GetBySourceHold(ctx, tenantID, holdID)
	case hold.StatusExpired, hold.StatusReleased:
		return nil, hold.ErrHoldExpired
	default:
		return nil, hold.ErrInvalidTransition
	}
	if h.Expired(c.clock.Now()) {
		return nil, hold.ErrHoldExpired
	}

	contactID, err := c.contacts.InsertOrFind(ctx, tx, tenantID, h.PatientName, h.PatientPhone, "")
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:              uuid.New(),
		TenantID:        tenantID,
		ContactID:       contactID,
		CalendarID:      h.CalendarID,
		ScheduledAt:     h.SlotTime,
		DurationMinutes: c.durationMinutes,
		ServiceType:     serviceType,
		Status:          StatusConfirmed,
		SourceHoldID:    h.ID,
		CreatedAt:       c.clock.Now(),
	}
	if err := c.store.Insert(ctx, tx, appt); err != nil {
		return nil, err
	}

	ok, err := c.holds.TransitionStatus(ctx, tx, tenantID, holdID, hold.StatusVerified, hold.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, hold.ErrInvalidTransition
	}

	if _, err := c.outbox.Insert(ctx, tx, tenantID, events.TypeAppointmentConfirmed, events.AppointmentConfirmedPayload{
		AppointmentID: appt.ID,
		TenantID:      tenantID,
		ContactID:     contactID,
		HoldID:        holdID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("booking: commit confirm tx: %w", err)
	}
	return appt, nil
}

// retryableConflict matches Postgres serialization failures and deadlocks.
func retryableConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

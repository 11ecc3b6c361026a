package hold

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicvoice/booking-engine/internal/clock"
	"github.com/clinicvoice/booking-engine/internal/observability/metrics"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

var holdTracer = otel.Tracer("booking.internal.hold")

// Service is the slot lock manager: it owns reservation, release and expiry
// of holds.
type Service struct {
	store   *Store
	locker  SlotLocker
	clock   clock.Clock
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	holdTTL time.Duration
}

type ServiceOption func(*Service)

// WithHoldTTL overrides the default reservation TTL.
func WithHoldTTL(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

// WithClock injects a deterministic clock for tests.
func WithClock(c clock.Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetrics wires booking metrics.
func WithMetrics(m *metrics.BookingMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

const defaultHoldTTL = 10 * time.Minute

func NewService(store *Store, locker SlotLocker, logger *logging.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		panic("hold: store required")
	}
	if locker == nil {
		panic("hold: slot locker required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	svc := &Service{
		store:   store,
		locker:  locker,
		clock:   clock.System{},
		logger:  logger,
		holdTTL: defaultHoldTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ReserveInput carries everything needed to claim a slot.
type ReserveInput struct {
	TenantID     string
	CalendarID   string
	SlotTime     time.Time
	PatientName  string
	PatientPhone string
}

func (in *ReserveInput) validate() error {
	if strings.TrimSpace(in.TenantID) == "" {
		return errors.New("hold: tenant id required")
	}
	if strings.TrimSpace(in.CalendarID) == "" {
		return errors.New("hold: calendar id required")
	}
	if in.SlotTime.IsZero() {
		return errors.New("hold: slot time required")
	}
	if strings.TrimSpace(in.PatientName) == "" {
		return errors.New("hold: patient name required")
	}
	if strings.TrimSpace(in.PatientPhone) == "" {
		return errors.New("hold: patient phone required")
	}
	return nil
}

// ReserveSlot atomically claims (tenant, calendar, slot) for one caller.
// Exactly one concurrent caller wins; the rest get ErrSlotTaken immediately,
// because a live phone call cannot block on another caller's hold.
func (s *Service) ReserveSlot(ctx context.Context, in ReserveInput) (*Hold, error) {
	ctx, span := holdTracer.Start(ctx, "hold.reserve")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}
	slotTime := in.SlotTime.UTC().Truncate(time.Minute)
	span.SetAttributes(
		attribute.String("booking.tenant_id", in.TenantID),
		attribute.String("booking.calendar_id", in.CalendarID),
		attribute.String("booking.slot_time", slotTime.Format(time.RFC3339)),
	)

	now := s.clock.Now()
	h := &Hold{
		ID:           uuid.New(),
		TenantID:     in.TenantID,
		CalendarID:   in.CalendarID,
		SlotTime:     slotTime,
		PatientName:  strings.TrimSpace(in.PatientName),
		PatientPhone: strings.TrimSpace(in.PatientPhone),
		Status:       StatusPending,
		ExpiresAt:    now.Add(s.holdTTL),
		CreatedAt:    now,
	}

	err := s.locker.WithSlotLock(ctx, in.TenantID, in.CalendarID, slotTime, func(lockCtx context.Context) error {
		blocked, err := s.store.SlotBlocked(lockCtx, in.TenantID, in.CalendarID, slotTime)
		if err != nil {
			return err
		}
		if blocked {
			return ErrSlotTaken
		}
		return s.store.Insert(lockCtx, nil, h)
	})
	if err != nil {
		if errors.Is(err, ErrLockNotAcquired) {
			// Another caller is inside the critical section for this slot.
			err = ErrSlotTaken
		}
		if errors.Is(err, ErrSlotTaken) {
			s.metrics.ObserveReservation("slot_taken")
			return nil, ErrSlotTaken
		}
		s.metrics.ObserveReservation("error")
		span.RecordError(err)
		return nil, err
	}

	s.metrics.ObserveReservation("reserved")
	s.logger.Info("slot reserved",
		"tenant_id", h.TenantID,
		"calendar_id", h.CalendarID,
		"slot_time", h.SlotTime,
		"hold_id", h.ID,
		"expires_at", h.ExpiresAt,
	)
	return h, nil
}

// Get returns the hold scoped to its tenant.
func (s *Service) Get(ctx context.Context, tenantID string, holdID uuid.UUID) (*Hold, error) {
	return s.store.Get(ctx, tenantID, holdID)
}

// ReleaseHold moves a non-terminal hold to released. Releasing a hold that
// already reached a terminal status is a no-op, not an error; a hang-up
// webhook may land well after confirmation.
func (s *Service) ReleaseHold(ctx context.Context, tenantID string, holdID uuid.UUID) error {
	released, err := s.store.Release(ctx, tenantID, holdID)
	if err != nil {
		return err
	}
	if released {
		s.logger.Info("hold released", "tenant_id", tenantID, "hold_id", holdID)
		return nil
	}
	exists, err := s.store.Exists(ctx, tenantID, holdID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrHoldNotFound
	}
	return nil
}

// SweepExpired expires every overdue non-terminal hold. Safe to run from
// multiple processes at once.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireOverdue(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("hold: sweep: %w", err)
	}
	if n > 0 {
		s.metrics.ObserveSweep(n)
		s.logger.Info("expired holds swept", "count", n)
	}
	return n, nil
}

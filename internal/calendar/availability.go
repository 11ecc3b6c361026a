package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicvoice/booking-engine/internal/clock"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

var calendarTracer = otel.Tracer("booking.internal.calendar")

// Provider answers availability questions for one tenant's calendar.
// External calendar systems (Google, Outlook) would implement this; the
// default implementation computes slots from the booking engine's own tables.
type Provider interface {
	FreeSlots(ctx context.Context, tenantID, calendarID string, from, to time.Time) ([]time.Time, error)
}

// PgxPool is the subset of pgxpool.Pool the service needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BusinessHours is the daily bookable window, hours and minutes in UTC.
type BusinessHours struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

// ParseBusinessHours reads "HH:MM"/"HH:MM" boundaries.
func ParseBusinessHours(start, end string) (BusinessHours, error) {
	s, err := time.Parse("15:04", start)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("calendar: bad day start %q: %w", start, err)
	}
	e, err := time.Parse("15:04", end)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("calendar: bad day end %q: %w", end, err)
	}
	bh := BusinessHours{
		StartHour:   s.Hour(),
		StartMinute: s.Minute(),
		EndHour:     e.Hour(),
		EndMinute:   e.Minute(),
	}
	if !bh.valid() {
		return BusinessHours{}, fmt.Errorf("calendar: day end %q not after start %q", end, start)
	}
	return bh, nil
}

func (h BusinessHours) valid() bool {
	return h.EndHour*60+h.EndMinute > h.StartHour*60+h.StartMinute
}

// Service computes free slots from a fixed grid minus active holds and
// confirmed appointments.
type Service struct {
	pool   PgxPool
	clock  clock.Clock
	logger *logging.Logger

	slotDuration time.Duration
	hours        BusinessHours
}

type ServiceOption func(*Service)

func WithClock(clk clock.Clock) ServiceOption {
	return func(s *Service) {
		if clk != nil {
			s.clock = clk
		}
	}
}

func WithSlotDuration(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.slotDuration = d
		}
	}
}

func WithBusinessHours(h BusinessHours) ServiceOption {
	return func(s *Service) {
		if h.valid() {
			s.hours = h
		}
	}
}

func NewService(pool PgxPool, logger *logging.Logger, opts ...ServiceOption) *Service {
	if pool == nil {
		panic("calendar: pgx pool required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		pool:         pool,
		clock:        clock.System{},
		logger:       logger,
		slotDuration: 30 * time.Minute,
		hours:        BusinessHours{StartHour: 9, EndHour: 17},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ Provider = (*Service)(nil)

// FreeSlots returns the bookable slot times in [from, to) that have neither an
// active hold nor a confirmed appointment. Past slots are never offered.
func (s *Service) FreeSlots(ctx context.Context, tenantID, calendarID string, from, to time.Time) ([]time.Time, error) {
	ctx, span := calendarTracer.Start(ctx, "calendar.free_slots")
	defer span.End()
	span.SetAttributes(attribute.String("booking.tenant_id", tenantID))

	from = from.UTC()
	to = to.UTC()
	if !to.After(from) {
		return nil, fmt.Errorf("calendar: range end must be after start")
	}

	blocked, err := s.blockedSlots(ctx, tenantID, calendarID, from, to)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var free []time.Time
	for day := from.Truncate(24 * time.Hour); day.Before(to); day = day.Add(24 * time.Hour) {
		open := day.Add(time.Duration(s.hours.StartHour)*time.Hour + time.Duration(s.hours.StartMinute)*time.Minute)
		close := day.Add(time.Duration(s.hours.EndHour)*time.Hour + time.Duration(s.hours.EndMinute)*time.Minute)
		for slot := open; slot.Add(s.slotDuration).Compare(close) <= 0; slot = slot.Add(s.slotDuration) {
			if slot.Before(from) || !slot.Before(to) || !slot.After(now) {
				continue
			}
			if _, taken := blocked[slot.Unix()]; taken {
				continue
			}
			free = append(free, slot)
		}
	}
	return free, nil
}

// blockedSlots collects slot times held or booked in the range, keyed by unix
// second so equality survives timezone round trips.
func (s *Service) blockedSlots(ctx context.Context, tenantID, calendarID string, from, to time.Time) (map[int64]struct{}, error) {
	query := `
		SELECT slot_time FROM holds
		WHERE tenant_id = $1 AND calendar_id = $2
			AND slot_time >= $3 AND slot_time < $4
			AND status IN ('pending', 'otp_sent', 'verified')
		UNION
		SELECT scheduled_at FROM appointments
		WHERE tenant_id = $1 AND calendar_id = $2
			AND scheduled_at >= $3 AND scheduled_at < $4
			AND status = 'confirmed'
	`
	rows, err := s.pool.Query(ctx, query, tenantID, calendarID, from, to)
	if err != nil {
		return nil, fmt.Errorf("calendar: query blocked slots: %w", err)
	}
	defer rows.Close()

	blocked := make(map[int64]struct{})
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("calendar: scan blocked slot: %w", err)
		}
		blocked[t.UTC().Unix()] = struct{}{}
	}
	return blocked, rows.Err()
}

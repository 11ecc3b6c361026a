package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrAppointmentNotFound is returned for unknown appointment ids.
	ErrAppointmentNotFound = errors.New("booking: appointment not found")
	// ErrDuplicateAppointment means the slot or source hold already has an
	// appointment. Caught by the database uniqueness constraints that back
	// up the hold layer.
	ErrDuplicateAppointment = errors.New("booking: duplicate appointment")
)

// Querier is satisfied by pgx pools, transactions, and pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists appointments in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	return &Store{pool: pool}
}

func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

const appointmentColumns = `id, tenant_id, contact_id, calendar_id, scheduled_at, duration_minutes,
		service_type, status, source_hold_id, confirmation_sms_sent,
		COALESCE(confirmation_sms_id, ''), confirmation_sms_sent_at, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var smsSentAt *time.Time
	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.ContactID,
		&a.CalendarID,
		&a.ScheduledAt,
		&a.DurationMinutes,
		&a.ServiceType,
		&a.Status,
		&a.SourceHoldID,
		&a.ConfirmationSMSSent,
		&a.ConfirmationSMSID,
		&smsSentAt,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("booking: scan appointment: %w", err)
	}
	a.ConfirmationSMSSentAt = smsSentAt
	return &a, nil
}

// Insert writes the appointment row inside the caller's transaction.
func (s *Store) Insert(ctx context.Context, q Querier, a *Appointment) error {
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO appointments (id, tenant_id, contact_id, calendar_id, scheduled_at,
			duration_minutes, service_type, status, source_hold_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.Exec(ctx, query,
		a.ID, a.TenantID, a.ContactID, a.CalendarID, a.ScheduledAt,
		a.DurationMinutes, a.ServiceType, a.Status, a.SourceHoldID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateAppointment
		}
		return fmt.Errorf("booking: insert appointment: %w", err)
	}
	return nil
}

// Get loads an appointment scoped to the tenant.
func (s *Store) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 AND tenant_id = $2`
	return scanAppointment(s.pool.QueryRow(ctx, query, id, tenantID))
}

// GetBySourceHold loads the appointment created from a hold, if any.
func (s *Store) GetBySourceHold(ctx context.Context, tenantID string, holdID uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE source_hold_id = $1 AND tenant_id = $2`
	return scanAppointment(s.pool.QueryRow(ctx, query, holdID, tenantID))
}

// RecordConfirmationOutcome persists the notification result. It touches only
// the SMS bookkeeping columns; booking status is never altered here.
func (s *Store) RecordConfirmationOutcome(ctx context.Context, tenantID string, id uuid.UUID, sent bool, smsID string, at time.Time) error {
	query := `
		UPDATE appointments
		SET confirmation_sms_sent = $3,
			confirmation_sms_id = NULLIF($4, ''),
			confirmation_sms_sent_at = $5
		WHERE id = $1 AND tenant_id = $2
	`
	ct, err := s.pool.Exec(ctx, query, id, tenantID, sent, smsID, at)
	if err != nil {
		return fmt.Errorf("booking: record confirmation outcome: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

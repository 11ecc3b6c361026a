package hold

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// Store persists holds in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("hold: pgx pool required")
	}
	return &Store{pool: pool}
}

func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.pool.Begin(ctx)
}

const holdColumns = `id, tenant_id, calendar_id, slot_time, patient_name, patient_phone,
		status, otp_code_hash, otp_salt, otp_sent_at, otp_attempts, expires_at, created_at`

func scanHold(row pgx.Row) (*Hold, error) {
	var h Hold
	var sentAt *time.Time
	err := row.Scan(
		&h.ID,
		&h.TenantID,
		&h.CalendarID,
		&h.SlotTime,
		&h.PatientName,
		&h.PatientPhone,
		&h.Status,
		&h.OTPCodeHash,
		&h.OTPSalt,
		&sentAt,
		&h.OTPAttempts,
		&h.ExpiresAt,
		&h.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHoldNotFound
		}
		return nil, fmt.Errorf("hold: scan: %w", err)
	}
	h.OTPSentAt = sentAt
	return &h, nil
}

// Insert writes a fresh pending hold. The partial unique index on active
// holds turns a lost race into ErrSlotTaken.
func (s *Store) Insert(ctx context.Context, q Querier, h *Hold) error {
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO holds (id, tenant_id, calendar_id, slot_time, patient_name, patient_phone, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := q.Exec(ctx, query,
		h.ID, h.TenantID, h.CalendarID, h.SlotTime, h.PatientName, h.PatientPhone, h.Status, h.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlotTaken
		}
		return fmt.Errorf("hold: insert: %w", err)
	}
	return nil
}

// Get loads a hold scoped to the tenant.
func (s *Store) Get(ctx context.Context, tenantID string, holdID uuid.UUID) (*Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM holds WHERE id = $1 AND tenant_id = $2`
	return scanHold(s.pool.QueryRow(ctx, query, holdID, tenantID))
}

// GetForUpdate loads a hold with a row lock inside the caller's transaction.
func (s *Store) GetForUpdate(ctx context.Context, q Querier, tenantID string, holdID uuid.UUID) (*Hold, error) {
	if q == nil {
		q = s.pool
	}
	query := `SELECT ` + holdColumns + ` FROM holds WHERE id = $1 AND tenant_id = $2 FOR UPDATE`
	return scanHold(q.QueryRow(ctx, query, holdID, tenantID))
}

// SlotBlocked reports whether an active hold or a booked appointment already
// owns the (tenant, calendar, slot_time) tuple.
func (s *Store) SlotBlocked(ctx context.Context, tenantID, calendarID string, slotTime time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM holds
			WHERE tenant_id = $1 AND calendar_id = $2 AND slot_time = $3
			  AND status IN ('pending', 'otp_sent', 'verified')
		) OR EXISTS (
			SELECT 1 FROM appointments
			WHERE tenant_id = $1 AND calendar_id = $2 AND scheduled_at = $3
			  AND status = 'confirmed'
		)
	`
	var blocked bool
	if err := s.pool.QueryRow(ctx, query, tenantID, calendarID, slotTime).Scan(&blocked); err != nil {
		return false, fmt.Errorf("hold: slot blocked check: %w", err)
	}
	return blocked, nil
}

// MarkOTPSent stores the hashed code and flips pending -> otp_sent.
func (s *Store) MarkOTPSent(ctx context.Context, tenantID string, holdID uuid.UUID, codeHash, salt []byte, sentAt time.Time) (bool, error) {
	query := `
		UPDATE holds
		SET status = 'otp_sent', otp_code_hash = $3, otp_salt = $4, otp_sent_at = $5
		WHERE id = $1 AND tenant_id = $2 AND status = 'pending'
	`
	ct, err := s.pool.Exec(ctx, query, holdID, tenantID, codeHash, salt, sentAt)
	if err != nil {
		return false, fmt.Errorf("hold: mark otp sent: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// ClearOTP undoes MarkOTPSent after a failed dispatch so the hold never
// claims a code was delivered when it wasn't.
func (s *Store) ClearOTP(ctx context.Context, tenantID string, holdID uuid.UUID) error {
	query := `
		UPDATE holds
		SET status = 'pending', otp_code_hash = NULL, otp_salt = NULL, otp_sent_at = NULL
		WHERE id = $1 AND tenant_id = $2 AND status = 'otp_sent'
	`
	if _, err := s.pool.Exec(ctx, query, holdID, tenantID); err != nil {
		return fmt.Errorf("hold: clear otp: %w", err)
	}
	return nil
}

// IncrementAttempts bumps the attempt counter and returns the new value.
// Guarded by status so duplicate tool calls on a finished hold are inert.
func (s *Store) IncrementAttempts(ctx context.Context, tenantID string, holdID uuid.UUID) (int, error) {
	query := `
		UPDATE holds
		SET otp_attempts = otp_attempts + 1
		WHERE id = $1 AND tenant_id = $2 AND status = 'otp_sent'
		RETURNING otp_attempts
	`
	var attempts int
	if err := s.pool.QueryRow(ctx, query, holdID, tenantID).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrHoldNotFound
		}
		return 0, fmt.Errorf("hold: increment attempts: %w", err)
	}
	return attempts, nil
}

// TransitionStatus performs a guarded from -> to update.
func (s *Store) TransitionStatus(ctx context.Context, q Querier, tenantID string, holdID uuid.UUID, from, to Status) (bool, error) {
	if q == nil {
		q = s.pool
	}
	query := `UPDATE holds SET status = $4 WHERE id = $1 AND tenant_id = $2 AND status = $3`
	ct, err := q.Exec(ctx, query, holdID, tenantID, from, to)
	if err != nil {
		return false, fmt.Errorf("hold: transition %s->%s: %w", from, to, err)
	}
	return ct.RowsAffected() == 1, nil
}

// Release moves any non-terminal hold to released. Already-terminal holds are
// a no-op so hang-up webhooks can fire after the fact.
func (s *Store) Release(ctx context.Context, tenantID string, holdID uuid.UUID) (bool, error) {
	query := `
		UPDATE holds
		SET status = 'released'
		WHERE id = $1 AND tenant_id = $2 AND status IN ('pending', 'otp_sent', 'verified')
	`
	ct, err := s.pool.Exec(ctx, query, holdID, tenantID)
	if err != nil {
		return false, fmt.Errorf("hold: release: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Exists reports whether the hold row is present for the tenant at all.
func (s *Store) Exists(ctx context.Context, tenantID string, holdID uuid.UUID) (bool, error) {
	var ok bool
	query := `SELECT EXISTS (SELECT 1 FROM holds WHERE id = $1 AND tenant_id = $2)`
	if err := s.pool.QueryRow(ctx, query, holdID, tenantID).Scan(&ok); err != nil {
		return false, fmt.Errorf("hold: exists: %w", err)
	}
	return ok, nil
}

// ExpireOverdue transitions every overdue non-terminal hold to expired.
// A conditional update keeps concurrent sweepers safe.
func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE holds
		SET status = 'expired'
		WHERE status IN ('pending', 'otp_sent', 'verified') AND expires_at < $1
	`
	ct, err := s.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("hold: expire overdue: %w", err)
	}
	return ct.RowsAffected(), nil
}

package contacts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrContactNotFound is returned for unknown contact ids.
var ErrContactNotFound = errors.New("contacts: not found")

// Contact is a patient record scoped to one tenant.
type Contact struct {
	ID              uuid.UUID `json:"id"`
	TenantID        string    `json:"tenant_id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email,omitempty"`
	LeadScore       int       `json:"lead_score"`
	LastCallSeconds int       `json:"last_call_seconds"`
	CreatedAt       time.Time `json:"created_at"`
}

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

// Store persists contacts in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("contacts: pgx pool required")
	}
	return &Store{pool: pool}
}

// InsertOrFind returns the contact id for (tenant, phone), creating the row
// if needed. Input is normalized the way the original intake did: E.164
// phone, title-case name, lowercase email. Runs inside the caller's
// transaction when q is non-nil.
func (s *Store) InsertOrFind(ctx context.Context, q Querier, tenantID, name, phone, email string) (uuid.UUID, error) {
	if q == nil {
		q = s.pool
	}
	phone = NormalizePhone(phone)
	if phone == "" {
		return uuid.Nil, errors.New("contacts: phone required")
	}
	query := `
		INSERT INTO contacts (id, tenant_id, name, phone, email)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (tenant_id, phone)
		DO UPDATE SET name = EXCLUDED.name, updated_at = now()
		RETURNING id
	`
	var id uuid.UUID
	if err := q.QueryRow(ctx, query, uuid.New(), tenantID, NormalizeName(name), phone, NormalizeEmail(email)).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("contacts: insert or find: %w", err)
	}
	return id, nil
}

// Get loads a contact scoped to the tenant.
func (s *Store) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Contact, error) {
	query := `
		SELECT id, tenant_id, name, phone, COALESCE(email, ''), lead_score, last_call_seconds, created_at
		FROM contacts
		WHERE id = $1 AND tenant_id = $2
	`
	var c Contact
	err := s.pool.QueryRow(ctx, query, id, tenantID).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Phone, &c.Email, &c.LeadScore, &c.LastCallSeconds, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("contacts: get: %w", err)
	}
	return &c, nil
}

// RecordCallSignals updates the lead-scoring inputs after a call ends.
func (s *Store) RecordCallSignals(ctx context.Context, tenantID string, id uuid.UUID, leadScore, callSeconds int) error {
	query := `
		UPDATE contacts
		SET lead_score = $3, last_call_seconds = $4, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`
	ct, err := s.pool.Exec(ctx, query, id, tenantID, leadScore, callSeconds)
	if err != nil {
		return fmt.Errorf("contacts: record call signals: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

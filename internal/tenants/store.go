package tenants

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTenantNotFound is returned for unknown tenant ids.
var ErrTenantNotFound = errors.New("tenants: not found")

// Tenant holds the per-business settings the notification bridge needs.
type Tenant struct {
	ID           string `json:"id"`
	BusinessName string `json:"business_name"`
	AlertPhone   string `json:"alert_phone,omitempty"`
	OwnerEmail   string `json:"owner_email,omitempty"`
	Timezone     string `json:"timezone"`
}

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads tenant settings from Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("tenants: pgx pool required")
	}
	return &Store{pool: pool}
}

// Get loads one tenant's settings.
func (s *Store) Get(ctx context.Context, tenantID string) (*Tenant, error) {
	query := `
		SELECT id, business_name, COALESCE(alert_phone, ''), COALESCE(owner_email, ''), timezone
		FROM tenants
		WHERE id = $1
	`
	var t Tenant
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(&t.ID, &t.BusinessName, &t.AlertPhone, &t.OwnerEmail, &t.Timezone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTenantNotFound
		}
		return nil, fmt.Errorf("tenants: get: %w", err)
	}
	return &t, nil
}

// Upsert writes tenant settings; used by seeding and onboarding flows.
func (s *Store) Upsert(ctx context.Context, t *Tenant) error {
	query := `
		INSERT INTO tenants (id, business_name, alert_phone, owner_email, timezone)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), COALESCE(NULLIF($5, ''), 'UTC'))
		ON CONFLICT (id)
		DO UPDATE SET business_name = EXCLUDED.business_name,
			alert_phone = EXCLUDED.alert_phone,
			owner_email = EXCLUDED.owner_email,
			timezone = EXCLUDED.timezone,
			updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, t.ID, t.BusinessName, t.AlertPhone, t.OwnerEmail, t.Timezone); err != nil {
		return fmt.Errorf("tenants: upsert: %w", err)
	}
	return nil
}

package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists sealed tenant credentials. Only this package touches the
// tenant_credentials table.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		panic("vault: pgx pool required")
	}
	return &Store{pool: pool}
}

// ActivePayload returns the sealed payload for (tenant, provider). Every
// lookup is scoped by tenant_id; there is no cross-tenant query path.
func (s *Store) ActivePayload(ctx context.Context, tenantID, provider string) ([]byte, error) {
	query := `
		SELECT encrypted_payload
		FROM tenant_credentials
		WHERE tenant_id = $1 AND provider = $2 AND is_active
		LIMIT 1
	`
	var sealed []byte
	if err := s.pool.QueryRow(ctx, query, tenantID, provider).Scan(&sealed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialUnavailable
		}
		return nil, fmt.Errorf("vault: load payload: %w", err)
	}
	return sealed, nil
}

// Upsert stores a sealed payload, replacing any prior bundle for the
// (tenant, provider) pair.
func (s *Store) Upsert(ctx context.Context, tenantID, provider string, sealed []byte) error {
	query := `
		INSERT INTO tenant_credentials (id, tenant_id, provider, encrypted_payload, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (tenant_id, provider)
		DO UPDATE SET encrypted_payload = EXCLUDED.encrypted_payload,
			is_active = TRUE,
			updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, uuid.New(), tenantID, provider, sealed); err != nil {
		return fmt.Errorf("vault: upsert credentials: %w", err)
	}
	return nil
}

// Deactivate disables the tenant's bundle without destroying it.
func (s *Store) Deactivate(ctx context.Context, tenantID, provider string) error {
	query := `
		UPDATE tenant_credentials
		SET is_active = FALSE, updated_at = now()
		WHERE tenant_id = $1 AND provider = $2
	`
	if _, err := s.pool.Exec(ctx, query, tenantID, provider); err != nil {
		return fmt.Errorf("vault: deactivate credentials: %w", err)
	}
	return nil
}

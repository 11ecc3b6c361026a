package hold

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func TestInsertMapsUniqueViolationToSlotTaken(t *testing.T) {
	store, mock := newMockStore(t)

	h := &Hold{
		ID:           uuid.New(),
		TenantID:     "tenant-a",
		CalendarID:   "cal-1",
		SlotTime:     time.Now().UTC().Truncate(time.Minute),
		PatientName:  "Jane Doe",
		PatientPhone: "+15551234567",
		Status:       StatusPending,
		ExpiresAt:    time.Now().UTC().Add(10 * time.Minute),
	}

	mock.ExpectExec("INSERT INTO holds").
		WithArgs(h.ID, h.TenantID, h.CalendarID, h.SlotTime, h.PatientName, h.PatientPhone, h.Status, h.ExpiresAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := store.Insert(context.Background(), nil, h)
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetScopesByTenant(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "tenant_id", "calendar_id", "slot_time", "patient_name", "patient_phone",
		"status", "otp_code_hash", "otp_salt", "otp_sent_at", "otp_attempts", "expires_at", "created_at",
	}).AddRow(id, "tenant-a", "cal-1", now, "Jane Doe", "+15551234567",
		StatusPending, []byte(nil), []byte(nil), nil, 0, now.Add(10*time.Minute), now)

	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(id, "tenant-a").WillReturnRows(rows)

	h, err := store.Get(context.Background(), "tenant-a", id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if h.ID != id || h.Status != StatusPending {
		t.Fatalf("unexpected hold: %#v", h)
	}

	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(id, "tenant-b").WillReturnError(pgx.ErrNoRows)
	if _, err := store.Get(context.Background(), "tenant-b", id); !errors.Is(err, ErrHoldNotFound) {
		t.Fatalf("expected ErrHoldNotFound for foreign tenant, got %v", err)
	}
}

func TestIncrementAttemptsOnFinishedHold(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectQuery("UPDATE holds").WithArgs(id, "tenant-a").WillReturnError(pgx.ErrNoRows)

	_, err := store.IncrementAttempts(context.Background(), "tenant-a", id)
	if !errors.Is(err, ErrHoldNotFound) {
		t.Fatalf("expected ErrHoldNotFound, got %v", err)
	}
}

func TestReleaseReportsWhetherRowMoved(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE holds").WithArgs(id, "tenant-a").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	released, err := store.Release(context.Background(), "tenant-a", id)
	if err != nil || !released {
		t.Fatalf("expected release to succeed, got released=%v err=%v", released, err)
	}

	mock.ExpectExec("UPDATE holds").WithArgs(id, "tenant-a").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	released, err = store.Release(context.Background(), "tenant-a", id)
	if err != nil || released {
		t.Fatalf("expected terminal hold to be a no-op, got released=%v err=%v", released, err)
	}
}

func TestExpireOverdueCountsRows(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectExec("UPDATE holds").WithArgs(now).WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := store.ExpireOverdue(context.Background(), now)
	if err != nil {
		t.Fatalf("expire overdue failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 expired holds, got %d", n)
	}
}

func TestTransitionStatusIsGuarded(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE holds SET status").
		WithArgs(id, "tenant-a", StatusOTPSent, StatusVerified).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := store.TransitionStatus(context.Background(), nil, "tenant-a", id, StatusOTPSent, StatusVerified)
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if ok {
		t.Fatal("expected guarded transition to report no update")
	}
}

package otp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/clinicvoice/booking-engine/internal/clock"
	"github.com/clinicvoice/booking-engine/internal/hold"
	"github.com/clinicvoice/booking-engine/internal/sms"
	"github.com/clinicvoice/booking-engine/internal/vault"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

type stubVault struct {
	creds *vault.SMSCredentials
	err   error
}

func (s stubVault) SMSCredentials(context.Context, string) (*vault.SMSCredentials, error) {
	return s.creds, s.err
}

func testCreds() *vault.SMSCredentials {
	return &vault.SMSCredentials{
		Provider:     sms.ProviderTelnyx,
		TelnyxAPIKey: "key-123",
		FromNumber:   "+15550100000",
	}
}

var holdTestColumns = []string{
	"id", "tenant_id", "calendar_id", "slot_time", "patient_name", "patient_phone",
	"status", "otp_code_hash", "otp_salt", "otp_sent_at", "otp_attempts", "expires_at", "created_at",
}

func holdRow(id uuid.UUID, status hold.Status, codeHash, salt []byte, sentAt *time.Time, expiresAt time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(holdTestColumns).AddRow(
		id, "tenant-a", "cal-1", expiresAt.Add(-10*time.Minute), "Jane Doe", "+15551234567",
		status, codeHash, salt, sentAt, 0, expiresAt, expiresAt.Add(-10*time.Minute),
	)
}

func newTestVerifier(t *testing.T, vlt vault.Vault, smsStatus int) (*Verifier, pgxmock.PgxPoolIface, *clock.Fixed) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(smsStatus)
		if smsStatus < 300 {
			_, _ = w.Write([]byte(`{"data":{"id":"msg-1"}}`))
		}
	}))
	t.Cleanup(srv.Close)

	clk := &clock.Fixed{T: time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)}
	factory := sms.NewFactory(logging.Default(), sms.WithTelnyxBaseURL(srv.URL))
	v := NewVerifier(hold.NewStore(mock), vlt, factory, logging.Default(), WithClock(clk))
	return v, mock, clk
}

func TestSendOTPDeliversCode(t *testing.T) {
	v, mock, clk := newTestVerifier(t, stubVault{creds: testCreds()}, http.StatusOK)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(id, "tenant-a").
		WillReturnRows(holdRow(id, hold.StatusPending, nil, nil, nil, clk.T.Add(5*time.Minute)))
	mock.ExpectExec("UPDATE holds").
		WithArgs(id, "tenant-a", pgxmock.AnyArg(), pgxmock.AnyArg(), clk.T).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := v.SendOTP(context.Background(), "tenant-a", id); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSendOTPRollsBackOnDeliveryFailure(t *testing.T) {
	// 400 from the provider is terminal: no retries, immediate rollback.
	v, mock, clk := newTestVerifier(t, stubVault{creds: testCreds()}, http.StatusBadRequest)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(id, "tenant-a").
		WillReturnRows(holdRow(id, hold.StatusPending, nil, nil, nil, clk.T.Add(5*time.Minute)))
	mock.ExpectExec("UPDATE holds").
		WithArgs(id, "tenant-a", pgxmock.AnyArg(), pgxmock.AnyArg(), clk.T).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// Failed dispatch clears the code and puts the hold back to pending.
	mock.ExpectExec("UPDATE holds").WithArgs(id, "tenant-a").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := v.SendOTP(context.Background(), "tenant-a", id)
	if !errors.Is(err, sms.ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSendOTPVaultMissLeavesHoldUntouched(t *testing.T) {
	v, mock, clk := newTestVerifier(t, stubVault{err: vault.ErrCredentialUnavailable}, http.StatusOK)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(id, "tenant-a").
		WillReturnRows(holdRow(id, hold.StatusPending, nil, nil, nil, clk.T.Add(5*time.Minute)))

	err := v.SendOTP(context.Background(), "tenant-a", id)
	if !errors.Is(err, vault.ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable, got %v", err)
	}
	// No UPDATE was ever expected: a vault miss must not mutate the hold.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSendOTPRejectsDuplicateSend(t *testing.T) {
	v, mock, clk := newTestVerifier(t, stubVault{creds: testCreds()}, http.StatusOK)
	id := uuid.New()
	sentAt := clk.T.Add(-time.Minute)

	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(id, "tenant-a").
		WillReturnRows(holdRow(id, hold.StatusOTPSent, []byte{1}, []byte{2}, &sentAt, clk.T.Add(5*time.Minute)))

	if err := v.SendOTP(context.Background(), "tenant-a", id); !errors.Is(err, ErrAlreadySent) {
		t.Fatalf("expected ErrAlreadySent, got %v", err)
	}
}

func TestVerifyOTPAcceptsCorrectCode(t *testing.T) {
	v, mock, clk := newTestVerifier(t, stubVault{creds: testCreds()}, http.StatusOK)
	id := uuid.New()
	salt := []byte("0123456789abcdef")
	sentAt := clk.T.Add(-time.Minute)

	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(id, "tenant-a").
		WillReturnRows(holdRow(id, hold.StatusOTPSent, HashCode("482913", salt), salt, &sentAt, clk.T.Add(5*time.Minute)))
	mock.ExpectQuery("UPDATE holds").WithArgs(id, "tenant-a").
		WillReturnRows(pgxmock.NewRows([]string{"otp_attempts"}).AddRow(1))
	mock.ExpectExec("UPDATE holds SET status").
		WithArgs(id, "tenant-a", hold.StatusOTPSent, hold.StatusVerified).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := v.VerifyOTP(context.Background(), "tenant-a", id, "482913"); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVerifyOTPWrongCodeCountsAttempt(t *testing.T) {
	v, mock, clk := newTestVerifier(t, stubVault{creds: testCreds()}, http.StatusOK)
	id := uuid.New()
	salt := []byte("0123456789abcdef")
	sentAt := clk.T.Add(-time.Minute)

	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(id, "tenant-a").
		WillReturnRows(holdRow(id, hold.StatusOTPSent, HashCode("482913", salt), salt, &sentAt, clk.T.Add(5*time.Minute)))
	mock.ExpectQuery("UPDATE holds").WithArgs(id, "tenant-a").
		WillReturnRows(pgxmock.NewRows([]string{"otp_attempts"}).AddRow(1))

	if err := v.VerifyOTP(context.Background(), "tenant-a", id, "000000"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
}

func TestVerifyOTPAttemptCapReleasesHold(t *testing.T) {
	v, mock, clk := newTestVerifier(t, stubVault{creds: testCreds()}, http.StatusOK)
	id := uuid.New()
	salt := []byte("0123456789abcdef")
	sentAt := clk.T.Add(-time.Minute)

	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(id, "tenant-a").
		WillReturnRows(holdRow(id, hold.StatusOTPSent, HashCode("482913", salt), salt, &sentAt, clk.T.Add(5*time.Minute)))
	mock.ExpectQuery("UPDATE holds").WithArgs(id, "tenant-a").
		WillReturnRows(pgxmock.NewRows([]string{"otp_attempts"}).AddRow(5))
	// Cap reached: the hold is released so the slot frees up.
	mock.ExpectExec("UPDATE holds").WithArgs(id, "tenant-a").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := v.VerifyOTP(context.Background(), "tenant-a", id, "000000"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVerifyOTPExpiredCode(t *testing.T) {
	v, mock, clk := newTestVerifier(t, stubVault{creds: testCreds()}, http.StatusOK)
	id := uuid.New()
	salt := []byte("0123456789abcdef")
	sentAt := clk.T.Add(-10 * time.Minute)

	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(id, "tenant-a").
		WillReturnRows(holdRow(id, hold.StatusOTPSent, HashCode("482913", salt), salt, &sentAt, clk.T.Add(5*time.Minute)))
	mock.ExpectQuery("UPDATE holds").WithArgs(id, "tenant-a").
		WillReturnRows(pgxmock.NewRows([]string{"otp_attempts"}).AddRow(1))

	// Correct digits, but the code aged past its window.
	if err := v.VerifyOTP(context.Background(), "tenant-a", id, "482913"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyOTPAfterRollbackReportsExpired(t *testing.T) {
	v, mock, clk := newTestVerifier(t, stubVault{creds: testCreds()}, http.StatusOK)
	id := uuid.New()

	// A failed dispatch put the hold back to pending with no code stored.
	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(id, "tenant-a").
		WillReturnRows(holdRow(id, hold.StatusPending, nil, nil, nil, clk.T.Add(5*time.Minute)))

	if err := v.VerifyOTP(context.Background(), "tenant-a", id, "482913"); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyOTPExpiredHold(t *testing.T) {
	v, mock, clk := newTestVerifier(t, stubVault{creds: testCreds()}, http.StatusOK)
	id := uuid.New()
	sentAt := clk.T.Add(-time.Minute)

	mock.ExpectQuery("SELECT id, tenant_id").WithArgs(id, "tenant-a").
		WillReturnRows(holdRow(id, hold.StatusOTPSent, []byte{1}, []byte{2}, &sentAt, clk.T.Add(-time.Second)))

	if err := v.VerifyOTP(context.Background(), "tenant-a", id, "482913"); !errors.Is(err, hold.ErrHoldExpired) {
		t.Fatalf("expected ErrHoldExpired, got %v", err)
	}
}

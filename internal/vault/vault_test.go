package vault

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := NewCipher(testMasterKey)
	if err != nil {
		t.Fatalf("cipher init failed: %v", err)
	}
	return c
}

func TestNewCipherRejectsBadKeys(t *testing.T) {
	if _, err := NewCipher("not hex"); err == nil {
		t.Fatal("expected error for non-hex key")
	}
	if _, err := NewCipher(hex.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	c := testCipher(t)
	plaintext := []byte(`{"provider":"telnyx","from_number":"+15550001111"}`)

	sealed, err := c.Seal("tenant-a", plaintext)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	opened, err := c.Open("tenant-a", sealed)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestOpenRejectsCrossTenantPayload(t *testing.T) {
	c := testCipher(t)
	sealed, err := c.Seal("tenant-a", []byte("secret"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if _, err := c.Open("tenant-b", sealed); err == nil {
		t.Fatal("payload sealed for tenant-a must not open under tenant-b")
	}
}

func TestOpenRejectsTruncatedPayload(t *testing.T) {
	c := testCipher(t)
	if _, err := c.Open("tenant-a", []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func newTestService(t *testing.T) (*Service, pgxmock.PgxPoolIface, *Cipher) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	c := testCipher(t)
	return NewService(NewStore(mock), c), mock, c
}

func TestSMSCredentialsDecryptsActiveBundle(t *testing.T) {
	svc, mock, cipher := newTestService(t)

	payload, _ := json.Marshal(SMSCredentials{
		Provider:        "telnyx",
		TelnyxAPIKey:    "KEY123",
		TelnyxProfileID: "profile-1",
		FromNumber:      "+15550001111",
	})
	sealed, err := cipher.Seal("tenant-a", payload)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	mock.ExpectQuery("SELECT encrypted_payload").
		WithArgs("tenant-a", ProviderSMS).
		WillReturnRows(pgxmock.NewRows([]string{"encrypted_payload"}).AddRow(sealed))

	creds, err := svc.SMSCredentials(context.Background(), "tenant-a")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if creds.TelnyxAPIKey != "KEY123" || creds.FromNumber != "+15550001111" {
		t.Fatalf("unexpected credentials: %#v", creds)
	}
}

func TestSMSCredentialsMissingRow(t *testing.T) {
	svc, mock, _ := newTestService(t)

	mock.ExpectQuery("SELECT encrypted_payload").
		WithArgs("tenant-missing", ProviderSMS).
		WillReturnError(pgx.ErrNoRows)

	if _, err := svc.SMSCredentials(context.Background(), "tenant-missing"); !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable, got %v", err)
	}
}

func TestSMSCredentialsRejectsEmptyFromNumber(t *testing.T) {
	svc, mock, cipher := newTestService(t)

	payload, _ := json.Marshal(SMSCredentials{Provider: "telnyx", TelnyxAPIKey: "KEY123"})
	sealed, err := cipher.Seal("tenant-a", payload)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	mock.ExpectQuery("SELECT encrypted_payload").
		WithArgs("tenant-a", ProviderSMS).
		WillReturnRows(pgxmock.NewRows([]string{"encrypted_payload"}).AddRow(sealed))

	if _, err := svc.SMSCredentials(context.Background(), "tenant-a"); !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable for missing from number, got %v", err)
	}
}

func TestSMSCredentialsBlankTenant(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.SMSCredentials(context.Background(), "  "); !errors.Is(err, ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable for blank tenant, got %v", err)
	}
}

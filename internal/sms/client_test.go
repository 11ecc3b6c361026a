package sms

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/clinicvoice/booking-engine/internal/vault"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

func testMessage() Message {
	return Message{
		TenantID: "tenant-a",
		To:       "+15551234567",
		From:     "+15550001111",
		Body:     "Your appointment is confirmed.",
	}
}

func TestTelnyxSendReturnsMessageID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer KEY123" {
			t.Errorf("unexpected auth header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"msg-42"}}`))
	}))
	defer srv.Close()

	client := NewTelnyxClient("KEY123", "profile-1", logging.Default()).WithBaseURL(srv.URL)
	id, err := client.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if id != "msg-42" {
		t.Fatalf("unexpected message id: %q", id)
	}
}

func TestTelnyxSendDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewTelnyxClient("KEY123", "", logging.Default()).WithBaseURL(srv.URL)
	if _, err := client.Send(context.Background(), testMessage()); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx responses must not be retried, got %d calls", calls.Load())
	}
}

func TestTelnyxSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"msg-7"}}`))
	}))
	defer srv.Close()

	client := NewTelnyxClient("KEY123", "", logging.Default()).WithBaseURL(srv.URL)
	id, err := client.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if id != "msg-7" || calls.Load() != 2 {
		t.Fatalf("unexpected outcome: id=%q calls=%d", id, calls.Load())
	}
}

func TestTelnyxSendValidatesMessage(t *testing.T) {
	client := NewTelnyxClient("KEY123", "", logging.Default())
	msg := testMessage()
	msg.To = ""
	if _, err := client.Send(context.Background(), msg); err == nil {
		t.Fatal("expected validation error")
	}
}

type stubClient struct {
	id    string
	err   error
	calls int
}

func (c *stubClient) Send(context.Context, Message) (string, error) {
	c.calls++
	return c.id, c.err
}

func TestFailoverUsesPrimaryWhenHealthy(t *testing.T) {
	primary := &stubClient{id: "p-1"}
	secondary := &stubClient{id: "s-1"}
	f := NewFailoverClient(primary, ProviderTelnyx, secondary, ProviderTwilio, logging.Default())

	id, err := f.Send(context.Background(), testMessage())
	if err != nil || id != "p-1" {
		t.Fatalf("expected primary result, got id=%q err=%v", id, err)
	}
	if secondary.calls != 0 {
		t.Fatal("secondary should not be touched when primary succeeds")
	}
}

func TestFailoverFallsBackOnPrimaryError(t *testing.T) {
	primary := &stubClient{err: errors.New("telnyx down")}
	secondary := &stubClient{id: "s-1"}
	f := NewFailoverClient(primary, ProviderTelnyx, secondary, ProviderTwilio, logging.Default())

	id, err := f.Send(context.Background(), testMessage())
	if err != nil || id != "s-1" {
		t.Fatalf("expected fallback result, got id=%q err=%v", id, err)
	}
}

func TestFailoverReportsSecondaryError(t *testing.T) {
	primary := &stubClient{err: errors.New("telnyx down")}
	secondary := &stubClient{err: errors.New("twilio down")}
	f := NewFailoverClient(primary, ProviderTelnyx, secondary, ProviderTwilio, logging.Default())

	if _, err := f.Send(context.Background(), testMessage()); err == nil {
		t.Fatal("expected error when both providers fail")
	}
}

func TestFactoryProviderSelection(t *testing.T) {
	f := NewFactory(logging.Default())

	telnyxOnly := &vault.SMSCredentials{Provider: ProviderTelnyx, TelnyxAPIKey: "k", FromNumber: "+15550001111"}
	if client, err := f.ForCredentials(telnyxOnly); err != nil {
		t.Fatalf("telnyx selection failed: %v", err)
	} else if _, ok := client.(*TelnyxClient); !ok {
		t.Fatalf("expected telnyx client, got %T", client)
	}

	both := &vault.SMSCredentials{
		Provider:         ProviderAuto,
		TelnyxAPIKey:     "k",
		TwilioAccountSID: "sid",
		TwilioAuthToken:  "tok",
		FromNumber:       "+15550001111",
	}
	if client, err := f.ForCredentials(both); err != nil {
		t.Fatalf("auto selection failed: %v", err)
	} else if _, ok := client.(*FailoverClient); !ok {
		t.Fatalf("expected failover client, got %T", client)
	}

	misconfigured := &vault.SMSCredentials{Provider: ProviderTwilio, TelnyxAPIKey: "k", FromNumber: "+15550001111"}
	if _, err := f.ForCredentials(misconfigured); !errors.Is(err, vault.ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable, got %v", err)
	}

	if _, err := f.ForCredentials(nil); !errors.Is(err, vault.ErrCredentialUnavailable) {
		t.Fatalf("expected ErrCredentialUnavailable for nil creds, got %v", err)
	}
}

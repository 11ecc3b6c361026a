package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrCredentialUnavailable means the tenant has no active credentials for the
// requested provider. Surfaced to callers as a retryable condition.
var ErrCredentialUnavailable = errors.New("vault: credentials unavailable")

// Provider names understood by the vault.
const (
	ProviderSMS = "sms"
)

// SMSCredentials is the decrypted per-tenant SMS secret bundle. Values live
// in memory for the duration of one send and must never be cached, logged,
// or persisted by callers.
type SMSCredentials struct {
	Provider         string `json:"provider"`
	TelnyxAPIKey     string `json:"telnyx_api_key,omitempty"`
	TelnyxProfileID  string `json:"telnyx_messaging_profile_id,omitempty"`
	TwilioAccountSID string `json:"twilio_account_sid,omitempty"`
	TwilioAuthToken  string `json:"twilio_auth_token,omitempty"`
	FromNumber       string `json:"from_number"`
}

// Vault hands out decrypted provider credentials scoped to one tenant.
type Vault interface {
	SMSCredentials(ctx context.Context, tenantID string) (*SMSCredentials, error)
}

// Service decrypts credentials on demand. No memoization: every request pays
// for a fresh store read and decrypt so secrets never outlive a request.
type Service struct {
	store  *Store
	cipher *Cipher
}

func NewService(store *Store, cipher *Cipher) *Service {
	if store == nil {
		panic("vault: store required")
	}
	if cipher == nil {
		panic("vault: cipher required")
	}
	return &Service{store: store, cipher: cipher}
}

var _ Vault = (*Service)(nil)

// SMSCredentials returns the tenant's active SMS credentials or
// ErrCredentialUnavailable.
func (s *Service) SMSCredentials(ctx context.Context, tenantID string) (*SMSCredentials, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrCredentialUnavailable
	}
	sealed, err := s.store.ActivePayload(ctx, tenantID, ProviderSMS)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.cipher.Open(tenantID, sealed)
	if err != nil {
		return nil, fmt.Errorf("vault: %w: %v", ErrCredentialUnavailable, err)
	}
	var creds SMSCredentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("vault: decode credentials: %w", err)
	}
	if creds.FromNumber == "" {
		return nil, ErrCredentialUnavailable
	}
	return &creds, nil
}

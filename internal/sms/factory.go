package sms

import (
	"fmt"

	"github.com/clinicvoice/booking-engine/internal/vault"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

const (
	// ProviderAuto tries Telnyx first, then Twilio.
	ProviderAuto = "auto"
	// ProviderTelnyx forces the Telnyx sender when credentials exist.
	ProviderTelnyx = "telnyx"
	// ProviderTwilio forces the Twilio sender when credentials exist.
	ProviderTwilio = "twilio"
)

// Factory builds per-request clients from decrypted tenant credentials.
// Nothing built here is reused across requests: the client lives exactly as
// long as the credentials that configured it.
type Factory struct {
	logger        *logging.Logger
	telnyxBaseURL string
	twilioBaseURL string
}

type FactoryOption func(*Factory)

// WithTelnyxBaseURL points built Telnyx clients at a test server.
func WithTelnyxBaseURL(url string) FactoryOption {
	return func(f *Factory) { f.telnyxBaseURL = url }
}

// WithTwilioBaseURL points built Twilio clients at a test server.
func WithTwilioBaseURL(url string) FactoryOption {
	return func(f *Factory) { f.twilioBaseURL = url }
}

func NewFactory(logger *logging.Logger, opts ...FactoryOption) *Factory {
	if logger == nil {
		logger = logging.Default()
	}
	f := &Factory{logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ForCredentials instantiates a Client for one tenant's credential bundle.
func (f *Factory) ForCredentials(creds *vault.SMSCredentials) (Client, error) {
	if creds == nil {
		return nil, vault.ErrCredentialUnavailable
	}

	var telnyx, twilio Client
	if creds.TelnyxAPIKey != "" {
		telnyx = NewTelnyxClient(creds.TelnyxAPIKey, creds.TelnyxProfileID, f.logger).WithBaseURL(f.telnyxBaseURL)
	}
	if creds.TwilioAccountSID != "" && creds.TwilioAuthToken != "" {
		twilio = NewTwilioClient(creds.TwilioAccountSID, creds.TwilioAuthToken, f.logger).WithBaseURL(f.twilioBaseURL)
	}

	switch creds.Provider {
	case ProviderTelnyx:
		if telnyx == nil {
			return nil, fmt.Errorf("sms: %w: telnyx selected but not configured", vault.ErrCredentialUnavailable)
		}
		return telnyx, nil
	case ProviderTwilio:
		if twilio == nil {
			return nil, fmt.Errorf("sms: %w: twilio selected but not configured", vault.ErrCredentialUnavailable)
		}
		return twilio, nil
	case ProviderAuto, "":
		if telnyx != nil && twilio != nil {
			return NewFailoverClient(telnyx, ProviderTelnyx, twilio, ProviderTwilio, f.logger), nil
		}
		if telnyx != nil {
			return telnyx, nil
		}
		if twilio != nil {
			return twilio, nil
		}
		return nil, fmt.Errorf("sms: %w: no provider configured", vault.ErrCredentialUnavailable)
	default:
		return nil, fmt.Errorf("sms: %w: unknown provider %q", vault.ErrCredentialUnavailable, creds.Provider)
	}
}

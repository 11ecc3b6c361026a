package sms

import (
	"context"
	"errors"
	"strings"
)

// ErrDeliveryFailed wraps provider-side send failures. Callers decide whether
// delivery failure rolls anything back; this package only reports it.
var ErrDeliveryFailed = errors.New("sms: delivery failed")

// Message is a single outbound SMS.
type Message struct {
	TenantID string
	To       string
	From     string
	Body     string
}

func (m *Message) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("sms: to required")
	}
	if strings.TrimSpace(m.From) == "" {
		return errors.New("sms: from required")
	}
	if strings.TrimSpace(m.Body) == "" {
		return errors.New("sms: body required")
	}
	return nil
}

// Client dispatches one SMS and returns the provider message id.
type Client interface {
	Send(ctx context.Context, msg Message) (string, error)
}

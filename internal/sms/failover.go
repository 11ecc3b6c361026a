package sms

import (
	"context"
	"errors"

	"github.com/clinicvoice/booking-engine/pkg/logging"
)

// FailoverClient attempts a primary send, then falls back to a secondary
// provider on error.
type FailoverClient struct {
	primary       Client
	secondary     Client
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverClient builds a failover client with named providers.
func NewFailoverClient(primary Client, primaryName string, secondary Client, secondaryName string, logger *logging.Logger) *FailoverClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverClient{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ Client = (*FailoverClient)(nil)

// Send tries the primary provider first, then the secondary on failure.
func (f *FailoverClient) Send(ctx context.Context, msg Message) (string, error) {
	if f == nil || f.primary == nil {
		return "", errors.New("sms: failover primary client not configured")
	}
	id, err := f.primary.Send(ctx, msg)
	if err == nil {
		return id, nil
	}
	if f.secondary == nil {
		return "", err
	}
	f.logger.Warn("primary sms send failed; attempting fallback",
		"provider", f.primaryName,
		"fallback", f.secondaryName,
		"error", err,
		"to", msg.To,
	)
	id, fallbackErr := f.secondary.Send(ctx, msg)
	if fallbackErr != nil {
		f.logger.Error("fallback sms send failed",
			"provider", f.secondaryName,
			"error", fallbackErr,
			"to", msg.To,
		)
		return "", fallbackErr
	}
	return id, nil
}

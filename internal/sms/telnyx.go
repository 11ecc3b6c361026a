package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicvoice/booking-engine/pkg/logging"
)

var telnyxTracer = otel.Tracer("booking.internal.sms.telnyx")

const telnyxMessagesURL = "https://api.telnyx.com/v2/messages"

// TelnyxClient posts SMS messages using Telnyx's V2 API.
type TelnyxClient struct {
	apiKey             string
	messagingProfileID string
	baseURL            string
	httpClient         *http.Client
	logger             *logging.Logger
}

// NewTelnyxClient builds a sender for Telnyx V2 API.
func NewTelnyxClient(apiKey, messagingProfileID string, logger *logging.Logger) *TelnyxClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &TelnyxClient{
		apiKey:             apiKey,
		messagingProfileID: messagingProfileID,
		baseURL:            telnyxMessagesURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// WithBaseURL points the client at a test server.
func (c *TelnyxClient) WithBaseURL(url string) *TelnyxClient {
	if url != "" {
		c.baseURL = url
	}
	return c
}

var _ Client = (*TelnyxClient)(nil)

// Send dispatches a single SMS via Telnyx, retrying transient failures.
func (c *TelnyxClient) Send(ctx context.Context, msg Message) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("sms: telnyx api key missing")
	}
	if err := msg.validate(); err != nil {
		return "", err
	}

	ctx, span := telnyxTracer.Start(ctx, "sms.telnyx.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.tenant_id", msg.TenantID),
		attribute.String("booking.to", msg.To),
	)

	payload := map[string]interface{}{
		"from": msg.From,
		"to":   msg.To,
		"text": msg.Body,
	}
	if c.messagingProfileID != "" {
		payload["messaging_profile_id"] = c.messagingProfileID
	}
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("sms: marshal telnyx payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				var parsed struct {
					Data struct {
						ID string `json:"id"`
					} `json:"data"`
				}
				_ = json.Unmarshal(body, &parsed)
				c.logger.Info("telnyx sms sent", "tenant_id", msg.TenantID, "to", msg.To)
				return parsed.Data.ID, nil
			}
			lastErr = fmt.Errorf("telnyx send failed: status %d", resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				break
			}
		}

		if attempt < 3 {
			sleep := time.Duration(200+rand.Intn(300)) * time.Millisecond
			time.Sleep(sleep)
		}
	}

	span.RecordError(lastErr)
	c.logger.Error("failed to send telnyx sms", "error", lastErr, "tenant_id", msg.TenantID, "to", msg.To)
	return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, lastErr)
}

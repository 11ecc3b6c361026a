package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicvoice/booking-engine/pkg/logging"
)

var twilioTracer = otel.Tracer("booking.internal.sms.twilio")

// TwilioClient posts SMS messages using Twilio's REST API.
type TwilioClient struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewTwilioClient builds a sender with sane defaults.
func NewTwilioClient(accountSID, authToken string, logger *logging.Logger) *TwilioClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioClient{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    "https://api.twilio.com",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// WithBaseURL points the client at a test server.
func (c *TwilioClient) WithBaseURL(url string) *TwilioClient {
	if url != "" {
		c.baseURL = strings.TrimRight(url, "/")
	}
	return c
}

var _ Client = (*TwilioClient)(nil)

// Send dispatches a single SMS, retrying transient failures.
func (c *TwilioClient) Send(ctx context.Context, msg Message) (string, error) {
	if c.accountSID == "" || c.authToken == "" {
		return "", errors.New("sms: twilio credentials missing")
	}
	if err := msg.validate(); err != nil {
		return "", err
	}

	ctx, span := twilioTracer.Start(ctx, "sms.twilio.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("booking.tenant_id", msg.TenantID),
		attribute.String("booking.to", msg.To),
	)

	payload := url.Values{}
	payload.Set("To", msg.To)
	payload.Set("From", msg.From)
	payload.Set("Body", msg.Body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
		if err != nil {
			lastErr = err
			break
		}
		req.SetBasicAuth(c.accountSID, c.authToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				var parsed struct {
					SID string `json:"sid"`
				}
				_ = json.Unmarshal(body, &parsed)
				c.logger.Info("twilio sms sent", "tenant_id", msg.TenantID, "to", msg.To)
				return parsed.SID, nil
			}
			lastErr = fmt.Errorf("twilio send failed: status %d", resp.StatusCode)
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
	c.logger.Error("failed to send twilio sms", "error", lastErr, "tenant_id", msg.TenantID, "to", msg.To)
	return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, lastErr)
}

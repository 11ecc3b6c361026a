package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Queue is the transport the bridge's work rides on. SQS in deployments, an
// in-memory channel in development and tests.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// task is one unit of notification work.
type task struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	TenantID string          `json:"tenant_id"`
	Payload  json.RawMessage `json:"payload"`
}

func encodeTask(t task) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	body, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("notify: encode task: %w", err)
	}
	return string(body), nil
}

func decodeTask(body string) (task, error) {
	var t task
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return task{}, fmt.Errorf("notify: decode task: %w", err)
	}
	return t, nil
}

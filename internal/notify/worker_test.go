package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/clinicvoice/booking-engine/internal/events"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

func TestWorkerDispatchesConfirmationTasks(t *testing.T) {
	b, mock, clk := newTestBridge(t, http.StatusOK)
	apptID := uuid.New()
	contactID := uuid.New()
	slot := clk.T.Add(time.Hour)

	mock.ExpectQuery("SELECT id, tenant_id, contact_id").WithArgs(apptID, "tenant-a").
		WillReturnRows(appointmentRow(apptID, contactID, slot, false))
	mock.ExpectQuery("SELECT id, tenant_id, name").WithArgs(contactID, "tenant-a").
		WillReturnRows(contactRow(contactID, clk.T))
	mock.ExpectQuery("SELECT id, business_name").WithArgs("tenant-a").
		WillReturnRows(tenantRow("", ""))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(apptID, "tenant-a", true, "msg-1", clk.T).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	q := NewMemoryQueue(4)
	payload, _ := json.Marshal(events.AppointmentConfirmedPayload{TenantID: "tenant-a", AppointmentID: apptID})
	body, err := encodeTask(task{Type: events.TypeAppointmentConfirmed, TenantID: "tenant-a", Payload: payload})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := q.Send(context.Background(), body); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	NewWorker(q, b, logging.Default(), 1).Start(ctx)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestWorkerDropsMalformedTasks(t *testing.T) {
	b, mock, _ := newTestBridge(t, http.StatusOK)

	q := NewMemoryQueue(4)
	if err := q.Send(context.Background(), "not json"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	NewWorker(q, b, logging.Default(), 1).Start(ctx)

	// Nothing was dispatched: no database expectations were registered.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

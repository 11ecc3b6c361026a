package booking

import (
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is confirmed or cancelled; there is no pending state
// here, that is what holds are for.
type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Appointment is the durable booking record created from a verified hold.
type Appointment struct {
	ID              uuid.UUID         `json:"id"`
	TenantID        string            `json:"tenant_id"`
	ContactID       uuid.UUID         `json:"contact_id"`
	CalendarID      string            `json:"calendar_id"`
	ScheduledAt     time.Time         `json:"scheduled_at"`
	DurationMinutes int               `json:"duration_minutes"`
	ServiceType     string            `json:"service_type"`
	Status          AppointmentStatus `json:"status"`
	SourceHoldID    uuid.UUID         `json:"source_hold_id"`

	ConfirmationSMSSent   bool       `json:"confirmation_sms_sent"`
	ConfirmationSMSID     string     `json:"confirmation_sms_id,omitempty"`
	ConfirmationSMSSentAt *time.Time `json:"confirmation_sms_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

package events

import "github.com/google/uuid"

// AppointmentConfirmedPayload asks the notification bridge to send the
// patient confirmation SMS.
type AppointmentConfirmedPayload struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	TenantID      string    `json:"tenant_id"`
	ContactID     uuid.UUID `json:"contact_id"`
	HoldID        uuid.UUID `json:"hold_id"`
}

// HotLeadPayload asks the notification bridge to evaluate the hot-lead
// policy for a contact after a call ends.
type HotLeadPayload struct {
	TenantID    string    `json:"tenant_id"`
	ContactID   uuid.UUID `json:"contact_id"`
	LeadScore   int       `json:"lead_score"`
	CallSeconds int       `json:"call_seconds"`
}

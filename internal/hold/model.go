package hold

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a hold through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOTPSent   Status = "otp_sent"
	StatusVerified  Status = "verified"
	StatusConfirmed Status = "confirmed"
	StatusExpired   Status = "expired"
	StatusReleased  Status = "released"
)

// Terminal reports whether the status no longer blocks the slot.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusExpired, StatusReleased:
		return true
	}
	return false
}

// Hold is a short-lived exclusive reservation on a calendar slot.
type Hold struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     string     `json:"tenant_id"`
	CalendarID   string     `json:"calendar_id"`
	SlotTime     time.Time  `json:"slot_time"`
	PatientName  string     `json:"patient_name"`
	PatientPhone string     `json:"patient_phone"`
	Status       Status     `json:"status"`
	OTPCodeHash  []byte     `json:"-"`
	OTPSalt      []byte     `json:"-"`
	OTPSentAt    *time.Time `json:"otp_sent_at,omitempty"`
	OTPAttempts  int        `json:"otp_attempts"`
	ExpiresAt    time.Time  `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Expired reports whether the hold itself (not the OTP code) has timed out.
func (h *Hold) Expired(now time.Time) bool {
	return now.After(h.ExpiresAt)
}

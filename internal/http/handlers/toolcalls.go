package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinicvoice/booking-engine/internal/booking"
	"github.com/clinicvoice/booking-engine/internal/calendar"
	"github.com/clinicvoice/booking-engine/internal/contacts"
	"github.com/clinicvoice/booking-engine/internal/events"
	"github.com/clinicvoice/booking-engine/internal/hold"
	"github.com/clinicvoice/booking-engine/internal/notify"
	"github.com/clinicvoice/booking-engine/internal/otp"
	"github.com/clinicvoice/booking-engine/internal/tenancy"
	"github.com/clinicvoice/booking-engine/internal/vault"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

// SMS status values returned by send_confirmation_sms. Delivery failure is
// reported, never escalated: the booking already committed.
const (
	SMSStatusSent            = "sent"
	SMSStatusFailedButBooked = "failed_but_booked"
	SMSStatusErrorButBooked  = "error_but_booked"
)

// ToolCallHandler exposes the booking engine as the synchronous tool-call
// surface the voice agent invokes. Every handler enforces sequencing and
// idempotency server-side; nothing relies on the agent calling tools in the
// right order.
type ToolCallHandler struct {
	holds        *hold.Service
	verifier     *otp.Verifier
	confirmer    *booking.Confirmer
	appointments *booking.Store
	contacts     *contacts.Store
	outbox       *events.OutboxStore
	bridge       *notify.Bridge
	availability calendar.Provider
	logger       *logging.Logger
}

func NewToolCallHandler(
	holds *hold.Service,
	verifier *otp.Verifier,
	confirmer *booking.Confirmer,
	appointments *booking.Store,
	contactStore *contacts.Store,
	outbox *events.OutboxStore,
	bridge *notify.Bridge,
	availability calendar.Provider,
	logger *logging.Logger,
) *ToolCallHandler {
	if holds == nil || verifier == nil || confirmer == nil || appointments == nil ||
		contactStore == nil || outbox == nil || bridge == nil || availability == nil {
		panic("handlers: all tool-call dependencies are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ToolCallHandler{
		holds:        holds,
		verifier:     verifier,
		confirmer:    confirmer,
		appointments: appointments,
		contacts:     contactStore,
		outbox:       outbox,
		bridge:       bridge,
		availability: availability,
		logger:       logger,
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

// writeDomainError maps the engine's error taxonomy onto stable wire codes.
func (h *ToolCallHandler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hold.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_unavailable", "that time is no longer available")
	case errors.Is(err, hold.ErrHoldNotFound):
		writeError(w, http.StatusNotFound, "hold_not_found", "no such hold")
	case errors.Is(err, hold.ErrHoldExpired):
		writeError(w, http.StatusGone, "hold_expired", "the hold has expired, reserve again")
	case errors.Is(err, hold.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_state", "the hold is not in the right state for this step")
	case errors.Is(err, otp.ErrMismatch):
		writeError(w, http.StatusUnprocessableEntity, "otp_mismatch", "the code does not match")
	case errors.Is(err, otp.ErrExpired):
		writeError(w, http.StatusGone, "otp_expired", "the code expired, request a new one")
	case errors.Is(err, otp.ErrTooManyAttempts):
		writeError(w, http.StatusTooManyRequests, "otp_attempts_exceeded", "too many attempts, the hold was released")
	case errors.Is(err, otp.ErrAlreadySent):
		writeError(w, http.StatusConflict, "otp_already_sent", "a code is already active for this hold")
	case errors.Is(err, vault.ErrCredentialUnavailable):
		writeError(w, http.StatusServiceUnavailable, "credential_unavailable", "no active SMS credentials for this business")
	case errors.Is(err, booking.ErrTransactionConflict):
		writeError(w, http.StatusServiceUnavailable, "transaction_conflict", "temporary contention, retry the call")
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", "no such appointment")
	default:
		h.logger.Error("tool call failed", "error", err)
		writeError(w, http.StatusBadGateway, "delivery_failed", "the operation could not be completed")
	}
}

func (h *ToolCallHandler) tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_tenant", "request is not scoped to a tenant")
		return "", false
	}
	return tenantID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return false
	}
	return true
}

func parseHoldID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "hold_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

type checkAvailabilityRequest struct {
	CalendarID string    `json:"calendar_id"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
}

type checkAvailabilityResponse struct {
	Slots []time.Time `json:"slots"`
}

// CheckAvailability handles POST /toolcalls/check_availability.
func (h *ToolCallHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	var req checkAvailabilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CalendarID == "" || req.From.IsZero() || req.To.IsZero() {
		writeError(w, http.StatusBadRequest, "bad_request", "calendar_id, from and to are required")
		return
	}

	slots, err := h.availability.FreeSlots(r.Context(), tenantID, req.CalendarID, req.From, req.To)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if slots == nil {
		slots = []time.Time{}
	}
	writeJSON(w, http.StatusOK, checkAvailabilityResponse{Slots: slots})
}

type reserveRequest struct {
	CalendarID   string    `json:"calendar_id"`
	SlotTime     time.Time `json:"slot_time"`
	PatientName  string    `json:"patient_name"`
	PatientPhone string    `json:"patient_phone"`
}

type reserveResponse struct {
	HoldID    uuid.UUID `json:"hold_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReserveAtomic handles POST /toolcalls/reserve_atomic.
func (h *ToolCallHandler) ReserveAtomic(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	var req reserveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	held, err := h.holds.ReserveSlot(r.Context(), hold.ReserveInput{
		TenantID:     tenantID,
		CalendarID:   req.CalendarID,
		SlotTime:     req.SlotTime,
		PatientName:  req.PatientName,
		PatientPhone: req.PatientPhone,
	})
	if err != nil {
		if errors.Is(err, hold.ErrSlotTaken) {
			h.writeDomainError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, reserveResponse{HoldID: held.ID, ExpiresAt: held.ExpiresAt})
}

type holdRequest struct {
	HoldID string `json:"hold_id"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

// SendOTP handles POST /toolcalls/send_otp.
func (h *ToolCallHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	var req holdRequest
	if !decodeBody(w, r, &req) {
		return
	}
	holdID, ok := parseHoldID(w, req.HoldID)
	if !ok {
		return
	}

	if err := h.verifier.SendOTP(r.Context(), tenantID, holdID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type verifyRequest struct {
	HoldID string `json:"hold_id"`
	Code   string `json:"code"`
}

// VerifyOTP handles POST /toolcalls/verify_otp.
func (h *ToolCallHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	holdID, ok := parseHoldID(w, req.HoldID)
	if !ok {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "code is required")
		return
	}

	if err := h.verifier.VerifyOTP(r.Context(), tenantID, holdID, req.Code); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

type confirmRequest struct {
	HoldID      string `json:"hold_id"`
	ServiceType string `json:"service_type"`
}

type confirmResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
}

// ConfirmBooking handles POST /toolcalls/confirm_booking.
func (h *ToolCallHandler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if !decodeBody(w, r, &req) {
		return
	}
	holdID, ok := parseHoldID(w, req.HoldID)
	if !ok {
		return
	}

	appt, err := h.confirmer.Confirm(r.Context(), tenantID, holdID, req.ServiceType)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{AppointmentID: appt.ID, ScheduledAt: appt.ScheduledAt})
}

type sendConfirmationRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type sendConfirmationResponse struct {
	SMSStatus string `json:"sms_status"`
}

// SendConfirmationSMS handles POST /toolcalls/send_confirmation_sms. It
// always answers with booking-success semantics: a failed text yields
// failed_but_booked, never an error that could make the agent retract the
// booking.
func (h *ToolCallHandler) SendConfirmationSMS(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	var req sendConfirmationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	apptID, err := uuid.Parse(req.AppointmentID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "appointment_id must be a UUID")
		return
	}

	payload := events.AppointmentConfirmedPayload{TenantID: tenantID, AppointmentID: apptID}
	if err := h.bridge.SendConfirmationSMS(r.Context(), payload); err != nil {
		if errors.Is(err, booking.ErrAppointmentNotFound) {
			h.writeDomainError(w, err)
			return
		}
		h.logger.Error("confirmation sms task failed", "error", err, "tenant_id", tenantID, "appointment_id", apptID)
		writeJSON(w, http.StatusOK, sendConfirmationResponse{SMSStatus: SMSStatusErrorButBooked})
		return
	}

	appt, err := h.appointments.Get(r.Context(), tenantID, apptID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	status := SMSStatusFailedButBooked
	if appt.ConfirmationSMSSent {
		status = SMSStatusSent
	}
	writeJSON(w, http.StatusOK, sendConfirmationResponse{SMSStatus: status})
}

type recordCallRequest struct {
	ContactID   string `json:"contact_id"`
	LeadScore   int    `json:"lead_score"`
	CallSeconds int    `json:"call_seconds"`
}

// RecordCall handles POST /toolcalls/record_call. The voice runtime reports
// call signals when a call ends; crossing the hot-lead thresholds is decided
// by the notification bridge, not here, so the event is staged unconditionally.
func (h *ToolCallHandler) RecordCall(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	var req recordCallRequest
	if !decodeBody(w, r, &req) {
		return
	}
	contactID, err := uuid.Parse(req.ContactID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "contact_id must be a UUID")
		return
	}
	if req.LeadScore < 0 || req.CallSeconds < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "lead_score and call_seconds must be non-negative")
		return
	}

	if err := h.contacts.RecordCallSignals(r.Context(), tenantID, contactID, req.LeadScore, req.CallSeconds); err != nil {
		if errors.Is(err, contacts.ErrContactNotFound) {
			writeError(w, http.StatusNotFound, "contact_not_found", "no such contact")
			return
		}
		h.writeDomainError(w, err)
		return
	}

	if _, err := h.outbox.Insert(r.Context(), nil, tenantID, events.TypeHotLead, events.HotLeadPayload{
		TenantID:    tenantID,
		ContactID:   contactID,
		LeadScore:   req.LeadScore,
		CallSeconds: req.CallSeconds,
	}); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// ReleaseHold handles POST /toolcalls/release_hold. Safe to call from a
// hang-up webhook long after the tool-call context returned.
func (h *ToolCallHandler) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	var req holdRequest
	if !decodeBody(w, r, &req) {
		return
	}
	holdID, ok := parseHoldID(w, req.HoldID)
	if !ok {
		return
	}

	if err := h.holds.ReleaseHold(r.Context(), tenantID, holdID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

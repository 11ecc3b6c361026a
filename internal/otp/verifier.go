package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicvoice/booking-engine/internal/clock"
	"github.com/clinicvoice/booking-engine/internal/hold"
	"github.com/clinicvoice/booking-engine/internal/observability/metrics"
	"github.com/clinicvoice/booking-engine/internal/sms"
	"github.com/clinicvoice/booking-engine/internal/vault"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

var otpTracer = otel.Tracer("booking.internal.otp")

var (
	// ErrMismatch means the candidate code does not match the stored one.
	ErrMismatch = errors.New("otp: code mismatch")
	// ErrExpired means the code aged out, or no code is currently stored.
	ErrExpired = errors.New("otp: code expired")
	// ErrTooManyAttempts means the attempt cap was hit and the hold was released.
	ErrTooManyAttempts = errors.New("otp: too many attempts")
	// ErrAlreadySent discourages duplicate sends while a code is live.
	ErrAlreadySent = errors.New("otp: code already sent")
)

const (
	defaultCodeTTL     = 5 * time.Minute
	defaultMaxAttempts = 5
	defaultCodeLength  = 6
)

// Verifier owns the pending -> otp_sent -> verified leg of a hold's
// lifecycle.
type Verifier struct {
	holds   *hold.Store
	vault   vault.Vault
	smsfac  *sms.Factory
	clock   clock.Clock
	logger  *logging.Logger
	metrics *metrics.BookingMetrics

	codeTTL     time.Duration
	maxAttempts int
	codeLength  int
}

type VerifierOption func(*Verifier)

func WithCodeTTL(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.codeTTL = d
		}
	}
}

func WithMaxAttempts(n int) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.maxAttempts = n
		}
	}
}

func WithCodeLength(n int) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.codeLength = n
		}
	}
}

func WithClock(c clock.Clock) VerifierOption {
	return func(v *Verifier) {
		if c != nil {
			v.clock = c
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) VerifierOption {
	return func(v *Verifier) { v.metrics = m }
}

func NewVerifier(holds *hold.Store, vlt vault.Vault, smsFactory *sms.Factory, logger *logging.Logger, opts ...VerifierOption) *Verifier {
	if holds == nil {
		panic("otp: hold store required")
	}
	if vlt == nil {
		panic("otp: vault required")
	}
	if smsFactory == nil {
		panic("otp: sms factory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	v := &Verifier{
		holds:       holds,
		vault:       vlt,
		smsfac:      smsFactory,
		clock:       clock.System{},
		logger:      logger,
		codeTTL:     defaultCodeTTL,
		maxAttempts: defaultMaxAttempts,
		codeLength:  defaultCodeLength,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// SendOTP generates a code for a pending hold and dispatches it by SMS.
//
// Credentials are fetched before any state is written, so a vault miss
// leaves the hold untouched. A failed dispatch rolls the hold back to
// pending with the code cleared: the hold must never claim a code was sent
// when it wasn't delivered.
func (v *Verifier) SendOTP(ctx context.Context, tenantID string, holdID uuid.UUID) error {
	ctx, span := otpTracer.Start(ctx, "otp.send")
	defer span.End()
	span.SetAttributes(attribute.String("booking.tenant_id", tenantID))

	h, err := v.holds.Get(ctx, tenantID, holdID)
	if err != nil {
		return err
	}
	if h.Expired(v.clock.Now()) {
		return hold.ErrHoldExpired
	}
	switch h.Status {
	case hold.StatusPending:
	case hold.StatusOTPSent:
		return ErrAlreadySent
	default:
		return hold.ErrInvalidTransition
	}

	creds, err := v.vault.SMSCredentials(ctx, tenantID)
	if err != nil {
		v.metrics.ObserveOTP("send", "no_credentials")
		return err
	}
	client, err := v.smsfac.ForCredentials(creds)
	if err != nil {
		v.metrics.ObserveOTP("send", "no_credentials")
		return err
	}

	code, err := GenerateCode(v.codeLength)
	if err != nil {
		return err
	}
	salt, err := NewSalt()
	if err != nil {
		return err
	}

	sentAt := v.clock.Now()
	updated, err := v.holds.MarkOTPSent(ctx, tenantID, holdID, HashCode(code, salt), salt, sentAt)
	if err != nil {
		return err
	}
	if !updated {
		// A concurrent call got there first.
		return ErrAlreadySent
	}

	_, err = client.Send(ctx, sms.Message{
		TenantID: tenantID,
		To:       h.PatientPhone,
		From:     creds.FromNumber,
		Body:     fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(v.codeTTL.Minutes())),
	})
	if err != nil {
		// Roll back so the caller can retry from a clean pending state.
		if clearErr := v.holds.ClearOTP(ctx, tenantID, holdID); clearErr != nil {
			v.logger.Error("otp rollback failed", "error", clearErr, "tenant_id", tenantID, "hold_id", holdID)
		}
		v.metrics.ObserveOTP("send", "delivery_failed")
		span.RecordError(err)
		return err
	}

	v.metrics.ObserveOTP("send", "sent")
	v.logger.Info("otp sent", "tenant_id", tenantID, "hold_id", holdID)
	return nil
}

// VerifyOTP checks a caller-supplied code against the stored hash.
//
// Every call consumes an attempt, including expired-code calls, so retries
// stay bounded. Hitting the cap releases the hold and forces a fresh
// reservation.
func (v *Verifier) VerifyOTP(ctx context.Context, tenantID string, holdID uuid.UUID, candidate string) error {
	ctx, span := otpTracer.Start(ctx, "otp.verify")
	defer span.End()
	span.SetAttributes(attribute.String("booking.tenant_id", tenantID))

	h, err := v.holds.Get(ctx, tenantID, holdID)
	if err != nil {
		return err
	}
	now := v.clock.Now()
	if h.Expired(now) {
		return hold.ErrHoldExpired
	}
	switch h.Status {
	case hold.StatusOTPSent:
	case hold.StatusPending:
		// Either no code was ever sent or a failed dispatch cleared it.
		return ErrExpired
	default:
		return hold.ErrInvalidTransition
	}

	attempts, err := v.holds.IncrementAttempts(ctx, tenantID, holdID)
	if err != nil {
		if errors.Is(err, hold.ErrHoldNotFound) {
			// Status moved under us; treat as a stale code.
			return ErrExpired
		}
		return err
	}

	codeAged := h.OTPSentAt == nil || now.Sub(*h.OTPSentAt) > v.codeTTL
	matched := !codeAged && Matches(candidate, h.OTPSalt, h.OTPCodeHash)

	if matched {
		ok, err := v.holds.TransitionStatus(ctx, nil, tenantID, holdID, hold.StatusOTPSent, hold.StatusVerified)
		if err != nil {
			return err
		}
		if !ok {
			return ErrExpired
		}
		v.metrics.ObserveOTP("verify", "verified")
		v.logger.Info("otp verified", "tenant_id", tenantID, "hold_id", holdID, "attempts", attempts)
		return nil
	}

	if attempts >= v.maxAttempts {
		if _, err := v.holds.Release(ctx, tenantID, holdID); err != nil {
			v.logger.Error("failed to release hold at attempt cap", "error", err, "tenant_id", tenantID, "hold_id", holdID)
		}
		v.metrics.ObserveOTP("verify", "attempts_exceeded")
		return ErrTooManyAttempts
	}
	if codeAged {
		v.metrics.ObserveOTP("verify", "expired")
		return ErrExpired
	}
	v.metrics.ObserveOTP("verify", "mismatch")
	return ErrMismatch
}

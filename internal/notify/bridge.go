package notify

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinicvoice/booking-engine/internal/booking"
	"github.com/clinicvoice/booking-engine/internal/clock"
	"github.com/clinicvoice/booking-engine/internal/contacts"
	"github.com/clinicvoice/booking-engine/internal/events"
	"github.com/clinicvoice/booking-engine/internal/observability/metrics"
	"github.com/clinicvoice/booking-engine/internal/sms"
	"github.com/clinicvoice/booking-engine/internal/tenants"
	"github.com/clinicvoice/booking-engine/internal/vault"
	"github.com/clinicvoice/booking-engine/pkg/logging"
)

var notifyTracer = otel.Tracer("booking.internal.notify")

const (
	defaultHotLeadMinScore       = 80
	defaultHotLeadMinCallSeconds = 60
)

// Bridge executes notification tasks after a booking is already committed.
// Nothing in here can fail a booking: delivery failures are recorded on the
// appointment row and logged, never propagated back into the booking flow.
type Bridge struct {
	appointments *booking.Store
	contacts     *contacts.Store
	tenants      *tenants.Store
	vault        vault.Vault
	smsFactory   *sms.Factory
	email        EmailSender
	clock        clock.Clock
	logger       *logging.Logger
	metrics      *metrics.BookingMetrics

	hotLeadMinScore       int
	hotLeadMinCallSeconds int
}

type BridgeOption func(*Bridge)

func WithHotLeadPolicy(minScore, minCallSeconds int) BridgeOption {
	return func(b *Bridge) {
		if minScore > 0 {
			b.hotLeadMinScore = minScore
		}
		if minCallSeconds > 0 {
			b.hotLeadMinCallSeconds = minCallSeconds
		}
	}
}

func WithEmailSender(sender EmailSender) BridgeOption {
	return func(b *Bridge) { b.email = sender }
}

func WithClock(clk clock.Clock) BridgeOption {
	return func(b *Bridge) {
		if clk != nil {
			b.clock = clk
		}
	}
}

func WithMetrics(m *metrics.BookingMetrics) BridgeOption {
	return func(b *Bridge) { b.metrics = m }
}

func NewBridge(appointments *booking.Store, contactStore *contacts.Store, tenantStore *tenants.Store, credVault vault.Vault, smsFactory *sms.Factory, logger *logging.Logger, opts ...BridgeOption) *Bridge {
	if appointments == nil {
		panic("notify: appointment store required")
	}
	if contactStore == nil {
		panic("notify: contact store required")
	}
	if tenantStore == nil {
		panic("notify: tenant store required")
	}
	if credVault == nil {
		panic("notify: vault required")
	}
	if smsFactory == nil {
		panic("notify: sms factory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	b := &Bridge{
		appointments:          appointments,
		contacts:              contactStore,
		tenants:               tenantStore,
		vault:                 credVault,
		smsFactory:            smsFactory,
		clock:                 clock.System{},
		logger:                logger,
		hotLeadMinScore:       defaultHotLeadMinScore,
		hotLeadMinCallSeconds: defaultHotLeadMinCallSeconds,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SendConfirmationSMS texts the patient that their appointment is booked. The
// outcome lands on the appointment's SMS bookkeeping columns either way; the
// appointment itself stays confirmed even when delivery fails.
func (b *Bridge) SendConfirmationSMS(ctx context.Context, p events.AppointmentConfirmedPayload) error {
	ctx, span := notifyTracer.Start(ctx, "notify.confirmation_sms")
	defer span.End()
	span.SetAttributes(attribute.String("booking.tenant_id", p.TenantID))

	appt, err := b.appointments.Get(ctx, p.TenantID, p.AppointmentID)
	if err != nil {
		return err
	}
	if appt.ConfirmationSMSSent {
		b.logger.Debug("confirmation sms already sent", "tenant_id", p.TenantID, "appointment_id", appt.ID)
		return nil
	}

	contact, err := b.contacts.Get(ctx, p.TenantID, appt.ContactID)
	if err != nil {
		return err
	}
	tenant, err := b.tenants.Get(ctx, p.TenantID)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Your appointment with %s is confirmed for %s. Reply STOP to opt out.",
		tenant.BusinessName, formatSlot(appt.ScheduledAt, tenant.Timezone))

	smsID, sendErr := b.sendTenantSMS(ctx, p.TenantID, contact.Phone, body)
	now := b.clock.Now()
	if sendErr != nil {
		b.metrics.ObserveSMS("confirmation", "failed")
		b.logger.Error("confirmation sms failed, booking unaffected",
			"error", sendErr, "tenant_id", p.TenantID, "appointment_id", appt.ID)
		if err := b.appointments.RecordConfirmationOutcome(ctx, p.TenantID, appt.ID, false, "", now); err != nil {
			b.logger.Error("failed to record confirmation outcome", "error", err, "appointment_id", appt.ID)
		}
		return nil
	}

	b.metrics.ObserveSMS("confirmation", "sent")
	if err := b.appointments.RecordConfirmationOutcome(ctx, p.TenantID, appt.ID, true, smsID, now); err != nil {
		b.logger.Error("failed to record confirmation outcome", "error", err, "appointment_id", appt.ID)
	}
	b.logger.Info("confirmation sms sent", "tenant_id", p.TenantID, "appointment_id", appt.ID, "sms_id", smsID)
	return nil
}

// MaybeSendHotLeadAlert notifies the business owner when a caller crosses the
// hot-lead thresholds. Below-threshold payloads are dropped silently.
func (b *Bridge) MaybeSendHotLeadAlert(ctx context.Context, p events.HotLeadPayload) error {
	ctx, span := notifyTracer.Start(ctx, "notify.hot_lead_alert")
	defer span.End()
	span.SetAttributes(attribute.String("booking.tenant_id", p.TenantID))

	if p.LeadScore < b.hotLeadMinScore || p.CallSeconds < b.hotLeadMinCallSeconds {
		b.logger.Debug("lead below hot threshold, skipping alert",
			"tenant_id", p.TenantID, "lead_score", p.LeadScore, "call_seconds", p.CallSeconds)
		return nil
	}

	contact, err := b.contacts.Get(ctx, p.TenantID, p.ContactID)
	if err != nil {
		return err
	}
	tenant, err := b.tenants.Get(ctx, p.TenantID)
	if err != nil {
		return err
	}
	if tenant.AlertPhone == "" && (tenant.OwnerEmail == "" || b.email == nil) {
		b.logger.Warn("hot lead detected but tenant has no alert channel", "tenant_id", p.TenantID)
		return nil
	}

	body := fmt.Sprintf("Hot lead: %s (%s) scored %d on a %ds call. Call them back soon.",
		contact.Name, contact.Phone, p.LeadScore, p.CallSeconds)

	if tenant.AlertPhone != "" {
		if _, err := b.sendTenantSMS(ctx, p.TenantID, tenant.AlertPhone, body); err != nil {
			b.metrics.ObserveSMS("hot_lead", "failed")
			b.logger.Error("hot lead sms failed", "error", err, "tenant_id", p.TenantID)
		} else {
			b.metrics.ObserveSMS("hot_lead", "sent")
		}
	}

	if tenant.OwnerEmail != "" && b.email != nil {
		msg := EmailMessage{
			To:      tenant.OwnerEmail,
			ToName:  tenant.BusinessName,
			Subject: fmt.Sprintf("Hot lead: %s", contact.Name),
			Body:    body,
		}
		if err := b.email.Send(ctx, msg); err != nil {
			b.logger.Error("hot lead email failed", "error", err, "tenant_id", p.TenantID)
		}
	}
	return nil
}

// formatSlot renders a slot time in the tenant's timezone for SMS copy.
// Falls back to UTC when the stored zone name does not load.
func formatSlot(t time.Time, tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Monday, Jan 2 at 3:04 PM MST")
}

func (b *Bridge) sendTenantSMS(ctx context.Context, tenantID, to, body string) (string, error) {
	creds, err := b.vault.SMSCredentials(ctx, tenantID)
	if err != nil {
		return "", err
	}
	client, err := b.smsFactory.ForCredentials(creds)
	if err != nil {
		return "", err
	}
	return client.Send(ctx, sms.Message{
		TenantID: tenantID,
		To:       to,
		From:     creds.FromNumber,
		Body:     body,
	})
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
					break
				}
			}
			if match {
				return m.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestBookingMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveReservation("created")
	m.ObserveReservation("created")
	m.ObserveReservation("slot_taken")
	m.ObserveOTP("send", "sent")
	m.ObserveSMS("confirmation", "failed")
	m.ObserveSweep(3)
	m.ObserveConfirmLatency(0.042)

	families, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(t, families, "booking_holds_reservations_total", map[string]string{"outcome": "created"}))
	assert.Equal(t, 1.0, counterValue(t, families, "booking_holds_reservations_total", map[string]string{"outcome": "slot_taken"}))
	assert.Equal(t, 1.0, counterValue(t, families, "booking_otp_operations_total", map[string]string{"op": "send", "outcome": "sent"}))
	assert.Equal(t, 1.0, counterValue(t, families, "booking_notify_sms_total", map[string]string{"kind": "confirmation", "outcome": "failed"}))
	assert.Equal(t, 3.0, counterValue(t, families, "booking_holds_swept_total", nil))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveReservation("created")
	m.ObserveOTP("send", "sent")
	m.ObserveSMS("confirmation", "failed")
	m.ObserveSweep(1)
	m.ObserveConfirmLatency(0.1)
}

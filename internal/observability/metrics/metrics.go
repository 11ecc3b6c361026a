package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking engine.
type BookingMetrics struct {
	reservationsTotal *prometheus.CounterVec
	otpTotal          *prometheus.CounterVec
	smsTotal          *prometheus.CounterVec
	sweptHolds        prometheus.Counter
	confirmLatency    prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "holds",
			Name:      "reservations_total",
			Help:      "Slot reservation attempts by outcome",
		}, []string{"outcome"}),
		otpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "otp",
			Name:      "operations_total",
			Help:      "OTP sends and verifications by outcome",
		}, []string{"op", "outcome"}),
		smsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "notify",
			Name:      "sms_total",
			Help:      "Outbound SMS dispatches by kind and outcome",
		}, []string{"kind", "outcome"}),
		sweptHolds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "holds",
			Name:      "swept_total",
			Help:      "Holds expired by the background sweep",
		}),
		confirmLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "confirm",
			Name:      "latency_seconds",
			Help:      "Latency of booking confirmation transactions",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.reservationsTotal, m.otpTotal, m.smsTotal, m.sweptHolds, m.confirmLatency)
	return m
}

func (m *BookingMetrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveOTP(op, outcome string) {
	if m == nil {
		return
	}
	m.otpTotal.WithLabelValues(op, outcome).Inc()
}

func (m *BookingMetrics) ObserveSMS(kind, outcome string) {
	if m == nil {
		return
	}
	m.smsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *BookingMetrics) ObserveSweep(count int64) {
	if m == nil {
		return
	}
	m.sweptHolds.Add(float64(count))
}

func (m *BookingMetrics) ObserveConfirmLatency(seconds float64) {
	if m == nil {
		return
	}
	m.confirmLatency.Observe(seconds)
}

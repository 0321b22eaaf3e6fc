package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "autoflow"

// SchedulingMetrics exposes counters/histograms for slot recommendation and booking.
type SchedulingMetrics struct {
	recommendationsTotal  *prometheus.CounterVec
	recommendationLatency *prometheus.HistogramVec
	slotsReturned         prometheus.Histogram
	bookingsTotal         *prometheus.CounterVec
	statusChangesTotal    *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		recommendationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "recommendations_total",
			Help:      "Total slot recommendation requests",
		}, []string{"outcome"}),
		recommendationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "recommendation_latency_seconds",
			Help:      "Latency of computing slot recommendations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "open_slots_returned",
			Help:      "Number of open slots returned per recommendation",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Appointment booking attempts by result",
		}, []string{"result", "meeting_type"}),
		statusChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduling",
			Name:      "status_changes_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.recommendationsTotal, m.recommendationLatency, m.slotsReturned, m.bookingsTotal, m.statusChangesTotal)
	return m
}

func (m *SchedulingMetrics) ObserveRecommendation(outcome string, seconds float64, slots int) {
	if m == nil {
		return
	}
	m.recommendationsTotal.WithLabelValues(outcome).Inc()
	m.recommendationLatency.WithLabelValues(outcome).Observe(seconds)
	if outcome == "ok" {
		m.slotsReturned.Observe(float64(slots))
	}
}

func (m *SchedulingMetrics) ObserveBooking(result, meetingType string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result, meetingType).Inc()
}

func (m *SchedulingMetrics) ObserveStatusChange(from, to string) {
	if m == nil {
		return
	}
	m.statusChangesTotal.WithLabelValues(from, to).Inc()
}

// CRMMetrics tracks lead capture, chat and billing activity.
type CRMMetrics struct {
	leadsTotal    *prometheus.CounterVec
	chatMessages  *prometheus.CounterVec
	paymentsTotal *prometheus.CounterVec
	revenueCents  *prometheus.CounterVec
}

func NewCRMMetrics(reg prometheus.Registerer) *CRMMetrics {
	m := &CRMMetrics{
		leadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crm",
			Name:      "leads_captured_total",
			Help:      "Leads captured by source",
		}, []string{"source"}),
		chatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "crm",
			Name:      "chat_messages_total",
			Help:      "Chat widget messages by sender and transport",
		}, []string{"sender", "transport"}),
		paymentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "payments_total",
			Help:      "Payments by status",
		}, []string{"status"}),
		revenueCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "revenue_cents_total",
			Help:      "Collected revenue in minor units",
		}, []string{"currency"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.leadsTotal, m.chatMessages, m.paymentsTotal, m.revenueCents)
	return m
}

func (m *CRMMetrics) ObserveLead(source string) {
	if m == nil {
		return
	}
	m.leadsTotal.WithLabelValues(source).Inc()
}

func (m *CRMMetrics) ObserveChatMessage(sender, transport string) {
	if m == nil {
		return
	}
	m.chatMessages.WithLabelValues(sender, transport).Inc()
}

func (m *CRMMetrics) ObservePayment(status, currency string, amountCents int64) {
	if m == nil {
		return
	}
	m.paymentsTotal.WithLabelValues(status).Inc()
	if status == "succeeded" && amountCents > 0 {
		m.revenueCents.WithLabelValues(currency).Add(float64(amountCents))
	}
}

// HTTPMetrics records request counts and latency per route pattern.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration)
	return m
}

func (m *HTTPMetrics) ObserveRequest(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, status).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(seconds)
}

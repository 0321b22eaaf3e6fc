package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	m.ObserveRecommendation("ok", 0.01, 42)
	m.ObserveRecommendation("invalid", 0.001, 0)
	m.ObserveBooking("booked", "video_call")
	m.ObserveBooking("conflict", "video_call")
	m.ObserveBooking("conflict", "video_call")
	m.ObserveStatusChange("scheduled", "confirmed")

	if got := counterValue(t, m.bookingsTotal.WithLabelValues("conflict", "video_call")); got != 2 {
		t.Fatalf("expected 2 conflicts, got %v", got)
	}
	if got := counterValue(t, m.recommendationsTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 ok recommendation, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "autoflow_scheduling_open_slots_returned" {
			found = f.GetMetric()[0].GetHistogram().GetSampleCount() == 1
		}
	}
	if !found {
		t.Fatal("expected one slots-returned observation")
	}
}

func TestCRMMetricsRevenue(t *testing.T) {
	m := NewCRMMetrics(prometheus.NewRegistry())
	m.ObserveLead("chat_widget")
	m.ObserveChatMessage("visitor", "websocket")
	m.ObservePayment("succeeded", "usd", 150000)
	m.ObservePayment("failed", "usd", 99900)

	if got := counterValue(t, m.revenueCents.WithLabelValues("usd")); got != 150000 {
		t.Fatalf("expected revenue from succeeded payments only, got %v", got)
	}
	if got := counterValue(t, m.paymentsTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected failed payment counted, got %v", got)
	}
}

func TestHTTPMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.ObserveRequest("/api/appointments", "POST", "201", 0.02)
	if got := counterValue(t, m.requestsTotal.WithLabelValues("/api/appointments", "POST", "201")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var s *SchedulingMetrics
	s.ObserveRecommendation("ok", 0.1, 3)
	s.ObserveBooking("booked", "phone_call")
	s.ObserveStatusChange("scheduled", "cancelled")

	var c *CRMMetrics
	c.ObserveLead("contact_form")
	c.ObserveChatMessage("bot", "rest")
	c.ObservePayment("succeeded", "usd", 100)

	var h *HTTPMetrics
	h.ObserveRequest("/", "GET", "200", 0.1)
}

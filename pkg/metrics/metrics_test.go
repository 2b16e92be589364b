package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestHTTPClientMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPClientMetrics(reg)
	m.IncAttempt("orders_by_phone", "5xx")
	m.IncAttempt("orders_by_phone", "5xx")
	m.IncRetry("orders_by_phone")
	m.ObserveDuration("orders_by_phone", 250*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "storefront_backend_attempts_total", "outcome", "5xx"); err != nil {
		t.Fatalf("fetch attempts: %v", err)
	} else if got != 2 {
		t.Fatalf("expected attempts=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "storefront_backend_retries_total", "route", "orders_by_phone"); err != nil {
		t.Fatalf("fetch retries: %v", err)
	} else if got != 1 {
		t.Fatalf("expected retries=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "storefront_backend_request_duration_seconds", "route", "orders_by_phone"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestTrackerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTrackerMetrics(reg)
	m.ObservePoll("background", "ok", 10*time.Millisecond)
	m.IncStatusChange()
	m.IncStaleDropped()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_tracker_polls_total", "mode", "background"); err != nil || got != 1 {
		t.Fatalf("polls: got %f err %v", got, err)
	}
	mf := findMetricFamily(mfs, "storefront_tracker_status_changes_total")
	if mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected one status change")
	}
}

func TestCartMetricsUnknownLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCartMetrics(reg)
	m.IncPersistFailure("")
	m.IncMutation("add")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_cart_persist_failures_total", "op", "unknown"); err != nil || got != 1 {
		t.Fatalf("persist failures: got %f err %v", got, err)
	}
}

func TestAPIMetricsLabelsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAPIMetrics(reg)
	m.Observe("/api/v1/cart", "GET", 200, 5*time.Millisecond)
	m.Observe("", "POST", 400, time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "storefront_api_requests_total", "status", "400"); err != nil || got != 1 {
		t.Fatalf("requests: got %f err %v", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "storefront_api_request_duration_seconds", "route", "unknown"); err != nil || got <= 0 {
		t.Fatalf("duration: got %f err %v", got, err)
	}
}

func TestNilRegistererIsSafe(t *testing.T) {
	NewAPIMetrics(nil).Observe("/", "GET", 200, time.Second)
	NewHTTPClientMetrics(nil).IncAttempt("x", "2xx")
	NewTrackerMetrics(nil).ObservePoll("x", "ok", time.Second)
	NewCartMetrics(nil).IncMutation("add")

	var m *CartMetrics
	m.IncPersistFailure("add")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

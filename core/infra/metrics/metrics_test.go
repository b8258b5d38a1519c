package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})
	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Noop
	m.IncAcquire("created")
	m.IncRelease("released")
	m.IncUpdateDenied()
	m.AddReaped(3)
	var g NoopGateway
	g.ObserveRequest("GET", "/health", "200", 0.01)
}

func TestPromMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("notelock")
	m.IncAcquire("created")
	m.IncAcquire("denied")
	m.IncRelease("forbidden")
	m.IncUpdateDenied()
	m.AddReaped(2)
	m.AddReaped(0)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "notelock_lock_acquire_total", map[string]string{"outcome": "created"}) {
		t.Fatalf("expected lock_acquire metric")
	}
	if !hasMetric(families, "notelock_lock_acquire_total", map[string]string{"outcome": "denied"}) {
		t.Fatalf("expected denied acquire metric")
	}
	if !hasMetric(families, "notelock_lock_release_total", map[string]string{"status": "forbidden"}) {
		t.Fatalf("expected lock_release metric")
	}
	if !hasMetric(families, "notelock_update_denied_total", nil) {
		t.Fatalf("expected update_denied metric")
	}
	if !hasMetric(families, "notelock_locks_reaped_total", nil) {
		t.Fatalf("expected locks_reaped metric")
	}
}

func TestGatewayMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewGatewayProm("notelock")
	m.ObserveRequest("GET", "/api/v1/notes", "200", 0.01)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "notelock_gateway_requests_total", map[string]string{"method": "GET", "route": "/api/v1/notes", "status": "200"}) {
		t.Fatalf("expected gateway_requests metric")
	}
	if !hasMetric(families, "notelock_gateway_request_duration_seconds", map[string]string{"method": "GET", "route": "/api/v1/notes"}) {
		t.Fatalf("expected gateway_request_duration metric")
	}
}

func TestHandler(t *testing.T) {
	withTestRegistry(t)
	m := NewProm("notelock")
	m.IncAcquire("created")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected metrics output")
	}
}

func hasMetric(families []*dto.MetricFamily, name string, labels map[string]string) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return true
			}
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	found := 0
	for _, pair := range pairs {
		if val, ok := labels[pair.GetName()]; ok && pair.GetValue() == val {
			found++
		}
	}
	return found == len(labels)
}

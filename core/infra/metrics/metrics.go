package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LockMetrics counts lock lifecycle outcomes.
type LockMetrics interface {
	IncAcquire(outcome string)
	IncRelease(status string)
	IncUpdateDenied()
	AddReaped(n int)
}

// GatewayMetrics captures request metrics for the HTTP API.
type GatewayMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
}

// Noop implements LockMetrics without emitting anything.
type Noop struct{}

func (Noop) IncAcquire(string) {}
func (Noop) IncRelease(string) {}
func (Noop) IncUpdateDenied()  {}
func (Noop) AddReaped(int)     {}

// NoopGateway implements GatewayMetrics without emitting anything.
type NoopGateway struct{}

func (NoopGateway) ObserveRequest(string, string, string, float64) {}

// Prom implements LockMetrics backed by Prometheus counters.
type Prom struct {
	acquires     *prometheus.CounterVec
	releases     *prometheus.CounterVec
	updateDenied prometheus.Counter
	reaped       prometheus.Counter
	once         sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		acquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquire_total",
			Help:      "Lock acquire calls by outcome (created/renewed/takeover/denied)",
		}, []string{"outcome"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_release_total",
			Help:      "Lock release calls by status (released/noop/forbidden)",
		}, []string{"status"}),
		updateDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_denied_total",
			Help:      "Note updates rejected because the caller held no valid lock",
		}),
		reaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locks_reaped_total",
			Help:      "Expired lock rows removed by the reaper",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.acquires, p.releases, p.updateDenied, p.reaped)
	})
}

func (p *Prom) IncAcquire(outcome string) {
	p.acquires.WithLabelValues(outcome).Inc()
}

func (p *Prom) IncRelease(status string) {
	p.releases.WithLabelValues(status).Inc()
}

func (p *Prom) IncUpdateDenied() {
	p.updateDenied.Inc()
}

func (p *Prom) AddReaped(n int) {
	if n > 0 {
		p.reaped.Add(float64(n))
	}
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// --- Gateway metrics ---

type gatewayProm struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	once     sync.Once
}

// NewGatewayProm constructs a GatewayMetrics with counters/histograms.
func NewGatewayProm(namespace string) GatewayMetrics {
	g := &gatewayProm{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	g.once.Do(func() {
		prometheus.MustRegister(g.requests, g.latency)
	})
	return g
}

func (g *gatewayProm) ObserveRequest(method, route, status string, durationSeconds float64) {
	g.requests.WithLabelValues(method, route, status).Inc()
	g.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

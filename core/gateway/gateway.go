package gateway

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EduardF1/adversus-interview-assignment/core/infra/config"
	"github.com/EduardF1/adversus-interview-assignment/core/infra/events"
	"github.com/EduardF1/adversus-interview-assignment/core/infra/logging"
	infraMetrics "github.com/EduardF1/adversus-interview-assignment/core/infra/metrics"
	"github.com/EduardF1/adversus-interview-assignment/core/infra/redisutil"
	"github.com/EduardF1/adversus-interview-assignment/core/locks"
	"github.com/EduardF1/adversus-interview-assignment/core/memstore"
	"github.com/EduardF1/adversus-interview-assignment/core/notes"
)

const (
	maxBodyBytes          = 1 << 20 // 1 MiB cap on incoming request bodies
	defaultRateLimitRPS   = 50
	defaultRateLimitBurst = 100
)

type server struct {
	locks locks.Store
	notes notes.Store

	hub    *events.Hub
	events events.Publisher
	nats   *events.NatsPublisher

	metrics     infraMetrics.GatewayMetrics
	lockMetrics infraMetrics.LockMetrics

	backend string
	lockTTL time.Duration
	started time.Time
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return isAllowedOrigin(r) },
}

type tokenBucket struct {
	tokens chan struct{}
}

func newTokenBucket(rps, burst int) *tokenBucket {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	tb := &tokenBucket{tokens: make(chan struct{}, burst)}
	for i := 0; i < burst; i++ {
		tb.tokens <- struct{}{}
	}
	interval := time.Second / time.Duration(rps)
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			select {
			case tb.tokens <- struct{}{}:
			default:
			}
		}
	}()
	return tb
}

func newTokenBucketFromEnv() *tokenBucket {
	rps := defaultRateLimitRPS
	burst := defaultRateLimitBurst
	if val := os.Getenv("NOTELOCK_RATE_LIMIT_RPS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			rps = parsed
		}
	}
	if val := os.Getenv("NOTELOCK_RATE_LIMIT_BURST"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			burst = parsed
		}
	}
	return newTokenBucket(rps, burst)
}

func (tb *tokenBucket) Allow() bool {
	if tb == nil {
		return true
	}
	select {
	case <-tb.tokens:
		return true
	default:
		return false
	}
}

var apiLimiter = newTokenBucketFromEnv()

// Run wires the stores, event publishers and reaper together and serves the
// HTTP API until the listener fails.
func Run(cfg *config.Config) error {
	if cfg == nil {
		cfg = config.Load()
	}

	gwMetrics := infraMetrics.NewGatewayProm("notelock")
	lockMetrics := infraMetrics.NewProm("notelock")

	var (
		lockStore locks.Store
		noteStore notes.Store
	)
	switch cfg.Backend {
	case config.BackendMemory:
		mem := memstore.New()
		lockStore = mem.Locks()
		noteStore = mem.Notes()
		logging.Info("gateway", "using in-memory backend")
	default:
		client, err := redisutil.NewClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		rls := locks.NewRedisStoreWithClient(client)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = rls.Ping(ctx)
		cancel()
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("ping redis: %w", err)
		}
		lockStore = rls
		noteStore = notes.NewRedisStore(client, rls)
	}
	defer lockStore.Close()
	defer noteStore.Close()

	hub := events.NewHub()
	var natsPub *events.NatsPublisher
	if cfg.NatsURL != "" {
		pub, err := events.NewNatsPublisher(cfg.NatsURL)
		if err != nil {
			logging.Error("gateway", "nats connect failed, events stay local", "error", err)
		} else {
			natsPub = pub
			defer natsPub.Close()
		}
	}
	publisher := events.Multi(hub, natsPub)

	if cfg.SeedNotes {
		if err := noteStore.Seed(context.Background()); err != nil {
			logging.Error("gateway", "seed notes failed", "error", err)
		}
	}

	if cfg.ReapInterval > 0 {
		reaper := locks.NewReaper(lockStore, cfg.ReapInterval, lockMetrics, publisher)
		go reaper.Run(context.Background())
	}

	s := &server{
		locks:       lockStore,
		notes:       noteStore,
		hub:         hub,
		events:      publisher,
		nats:        natsPub,
		metrics:     gwMetrics,
		lockMetrics: lockMetrics,
		backend:     cfg.Backend,
		lockTTL:     cfg.LockTTL,
		started:     time.Now().UTC(),
	}

	return startHTTPServer(s, cfg.HTTPAddr, cfg.MetricsAddr)
}

func startHTTPServer(s *server, httpAddr, metricsAddr string) error {
	mux := s.routes()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", infraMetrics.Handler())
	go func() {
		srv := &http.Server{
			Addr:         metricsAddr,
			Handler:      metricsMux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		logging.Info("gateway", "metrics listening", "addr", metricsAddr+"/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("gateway", "metrics server error", "error", err)
		}
	}()

	handler := corsMiddleware(rateLimitMiddleware(mux))

	logging.Info("gateway", "http listening", "addr", httpAddr)
	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Error("gateway", "http server error", "error", err)
		return err
	}
	return nil
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// 1. Health
	mux.HandleFunc("GET /health", s.handleHealth)

	// 2. Status snapshot (store ping, bus state, uptime)
	mux.HandleFunc("GET /api/v1/status", s.instrumented("/api/v1/status", s.handleStatus))

	// 3. Session identity
	mux.HandleFunc("GET /api/v1/session", s.instrumented("/api/v1/session", s.handleSession))

	// 4. Notes
	mux.HandleFunc("GET /api/v1/notes", s.instrumented("/api/v1/notes", s.handleListNotes))
	mux.HandleFunc("POST /api/v1/notes", s.instrumented("/api/v1/notes", s.handleCreateNote))
	mux.HandleFunc("GET /api/v1/notes/{id}", s.instrumented("/api/v1/notes/{id}", s.handleGetNote))
	mux.HandleFunc("PATCH /api/v1/notes/{id}", s.instrumented("/api/v1/notes/{id}", s.handleUpdateNote))

	// 5. Locks
	mux.HandleFunc("POST /api/v1/notes/{id}/lock", s.instrumented("/api/v1/notes/{id}/lock", s.handleAcquireLock))
	mux.HandleFunc("DELETE /api/v1/notes/{id}/lock", s.instrumented("/api/v1/notes/{id}/lock", s.handleReleaseLock))
	mux.HandleFunc("GET /api/v1/notes/{id}/lock", s.instrumented("/api/v1/notes/{id}/lock", s.handleGetLock))

	// 6. Event stream (WebSocket)
	mux.HandleFunc("/api/v1/events", s.instrumented("/api/v1/events", s.handleEvents))

	return mux
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			if !isAllowedOrigin(r) {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Holder")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAllowedOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Non-browser clients often omit Origin; treat as allowed.
		return true
	}

	allowed, allowAll := allowedOriginsFromEnv()
	if allowAll {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}

	if len(allowed) == 0 {
		host := strings.ToLower(u.Hostname())
		switch host {
		case "localhost", "127.0.0.1", "::1":
			return true
		}
		reqHost := strings.ToLower(requestHostname(r.Host))
		if reqHost != "" && host == reqHost {
			return true
		}
		return false
	}

	_, ok := allowed[origin]
	return ok
}

func allowedOriginsFromEnv() (map[string]struct{}, bool) {
	for _, key := range []string{
		"NOTELOCK_ALLOWED_ORIGINS",
		"CORS_ALLOW_ORIGINS",
	} {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			continue
		}
		if raw == "*" {
			return nil, true
		}
		set := make(map[string]struct{})
		for _, part := range strings.Split(raw, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			set[p] = struct{}{}
		}
		return set, false
	}
	return nil, false
}

func requestHostname(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil && host != "" {
		return host
	}
	return hostport
}

func rateLimitMiddleware(next http.Handler) http.Handler {
	if apiLimiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if !apiLimiter.Allow() {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack forwards websocket hijacking support to the underlying writer when available.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("hijacker not supported")
	}
	return hj.Hijack()
}

// Flush preserves streaming support if the wrapped writer implements it.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrumented wraps handlers to record metrics.
func (s *server) instrumented(route string, fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, route, fmt.Sprintf("%d", rec.status), time.Since(start).Seconds())
		}
	}
}

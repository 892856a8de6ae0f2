package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"painel/internal/log"
	"painel/internal/metrics"
	"painel/internal/services"
)

// DefaultMaxUploadBytes bounds multipart uploads when no limit is configured.
const DefaultMaxUploadBytes int64 = 20 << 20

// Options carries the server settings that come from configuration.
type Options struct {
	MaxUploadBytes    int64
	HotmartHottok     string
	KiwifySecret      string
	RequestsPerMinute int
	Logger            *log.Logger
	Metrics           *metrics.Metrics
}

// Server is the JSON API of the dashboard.
type Server struct {
	http.Server
	dash    *services.DashboardService
	hooks   *services.WebhookService
	metrics *metrics.Metrics
	logger  *log.Logger
	limiter *rateLimiter

	maxUploadBytes int64
	hotmartHottok  string
	kiwifySecret   string
	started        time.Time

	shutdownOnce sync.Once
}

type requestIDKey struct{}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, dash *services.DashboardService, hooks *services.WebhookService, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		dash:           dash,
		hooks:          hooks,
		metrics:        opts.Metrics,
		logger:         opts.Logger.WithComponent(log.ComponentHTTP),
		limiter:        newRateLimiter(opts.RequestsPerMinute),
		maxUploadBytes: opts.MaxUploadBytes,
		hotmartHottok:  opts.HotmartHottok,
		kiwifySecret:   opts.KiwifySecret,
		started:        time.Now(),
	}

	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(log.Middleware(s.logger))
	r.Use(log.RequestIDMiddleware(requestIDFrom))
	r.Use(s.withObservability)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())

	r.Post("/webhooks/{platform}", s.handleWebhook)

	r.Route("/projects/{project}", func(r chi.Router) {
		r.Use(s.withRateLimit)
		r.Delete("/", s.handleDeleteProject)

		r.Post("/uploads", s.handleUpload)
		r.Get("/uploads", s.handleUploadHistory)
		r.Delete("/uploads/{id}", s.handleDeleteUpload)
		r.Post("/imports", s.handleImport)

		r.Get("/periods", s.handlePeriods)
		r.Get("/periods/{period}/kpis", s.handleKPIs)
		r.Get("/periods/{period}/trends", s.handleTrends)
		r.Get("/periods/{period}/payout", s.handlePayout)
		r.Delete("/periods/{period}", s.handleClearPeriod)
		r.Delete("/periods/{period}/sales/{id}", s.handleRemoveManualSale)

		r.Post("/sales", s.handleAddManualSale)
		r.Get("/sales", s.handleListManualSales)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// withRequestID reuses a sane inbound X-Request-ID or mints one.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" || len(id) > 64 || strings.ContainsAny(id, " \t\r\n") {
			id = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

// withObservability applies security headers and records access logs and
// route metrics.
func (s *Server) withObservability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		clientIP := extractClientIP(r)
		access := log.NewAccessLogger(log.FromContext(ctx))

		if isSuspiciousRequest(r) {
			s.metrics.SecurityEvent("suspicious")
			access.Suspicious(ctx, r, clientIP)
		}

		setSecurityHeaders(w, r)
		access.Started(ctx, r, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		route := routePattern(r)
		access.Completed(ctx, r, route, rw.statusCode, duration, clientIP)
		s.metrics.ObserveHTTP(r.Method, route, rw.statusCode, duration)
	})
}

// withRateLimit throttles mutating requests per client IP.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		clientIP := extractClientIP(r)
		if !s.limiter.allow(clientIP) {
			s.metrics.SecurityEvent("rate_limited")
			log.NewAccessLogger(log.FromContext(r.Context())).RateLimited(r.Context(), r, clientIP)
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").
				Header("Retry-After", "60").
				Write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routePattern keeps metric cardinality bounded by labelling requests with
// the matched chi pattern instead of the raw path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

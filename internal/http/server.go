package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"budget/internal/core"
	applog "budget/internal/log"
	"budget/internal/middleware/ratelimit"
	"budget/internal/middleware/security"
	"budget/internal/middleware/trace"
	appweb "budget/web"
)

// TransactionService is what the server needs from the service layer
type TransactionService interface {
	Record(ctx context.Context, amount, description, kind string) (core.Transaction, core.Balances, error)
	Balances() (core.Balances, error)
	Snapshot() ([]core.Transaction, core.Balances, error)
	Ready() bool
}

type appMetrics struct {
	transactionsRecorded int64
	recordFailures       int64
	uptime               time.Time
}

type Server struct {
	http.Server
	templates *template.Template
	service   TransactionService
	logger    *applog.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

type options struct {
	logger             *applog.Logger
	requestsPerMinute  int
	templatesFS        fs.FS
	staticFS           fs.FS
	trustedProxyRanges []string
}

// Option customises NewServer
type Option func(*options)

// WithLogger sets the logger for HTTP events
func WithLogger(logger *applog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRateLimit sets the number of write requests allowed per client per minute
func WithRateLimit(requestsPerMinute int) Option {
	return func(o *options) { o.requestsPerMinute = requestsPerMinute }
}

// WithTemplatesFS replaces the embedded templates, expected under templates/
func WithTemplatesFS(fsys fs.FS) Option {
	return func(o *options) { o.templatesFS = fsys }
}

// WithTrustedProxies adds CIDR ranges allowed to set forwarding headers
func WithTrustedProxies(cidrs ...string) Option {
	return func(o *options) { o.trustedProxyRanges = append(o.trustedProxyRanges, cidrs...) }
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, svc TransactionService, opts ...Option) *Server {
	o := options{
		requestsPerMinute: ratelimit.DefaultConfig().RequestsPerMinute,
		templatesFS:       appweb.TemplatesFS,
		staticFS:          appweb.StaticFS,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}

	detector := security.NewDetector()
	for _, cidr := range o.trustedProxyRanges {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			o.logger.Warn("Ignoring trusted proxy range", applog.FieldError, err)
		}
	}

	s := &Server{
		service:          svc,
		logger:           o.logger,
		securityDetector: detector,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: o.requestsPerMinute,
			CleanupInterval:   5 * time.Minute,
		}),
		appMetrics: &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(detector.ExtractClientIP, o.logger)

	t, err := template.ParseFS(o.templatesFS, "templates/*.html")
	if err != nil {
		o.logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := fs.Sub(o.staticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		o.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	limited := s.rateLimiter.Middleware(detector.ExtractClientIP, s.onRateLimit)

	mux.HandleFunc("/{$}", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.Handle("/transactions", limited(http.HandlerFunc(s.handleCreateTransaction)))
	mux.HandleFunc("/ui/balances", s.handleBalancesPartial)
	mux.HandleFunc("/ui/history", s.handleHistoryPartial)
	mux.HandleFunc("/api/balances", s.handleAPIBalances)
	mux.Handle("/api/transactions", s.limitWrites(limited, http.HandlerFunc(s.handleAPITransactions)))

	var handler http.Handler = mux
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// limitWrites applies the rate limiter to POST requests only
func (s *Server) limitWrites(limit func(http.Handler) http.Handler, next http.Handler) http.Handler {
	limited := limit(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			limited.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r))
	w.Header().Set("Retry-After", "60")
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again later.").Write(w)
}

// Shutdown gracefully shuts down the server and its background routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) recordOutcome(err error) {
	if err != nil {
		atomic.AddInt64(&s.appMetrics.recordFailures, 1)
		return
	}
	atomic.AddInt64(&s.appMetrics.transactionsRecorded, 1)
}

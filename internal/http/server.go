package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tally/internal/auth"
	"tally/internal/cache"
	"tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
	"tally/internal/services"
)

const (
	readyTimeout         = 2 * time.Second
	cacheCleanupInterval = 10 * time.Minute
)

// Services groups the application services the handlers call into.
type Services struct {
	Ledger   *services.LedgerService
	Stats    *services.StatsService
	Settings *services.SettingsService
}

type Options struct {
	Addr   string
	Logger *log.Logger
	Auth   *auth.Verifier
	// Ready reports whether the backing store can serve requests.
	Ready              func(ctx context.Context) error
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	svc      Services
	ready    func(ctx context.Context) error
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	caches   *cache.Manager
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
//
// Chain: trace -> suspicious request detection -> security headers -> routes.
// Everything under /api/ additionally passes auth and, for mutations, the
// per-owner rate limit.
func NewServer(opts Options, svc Services) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		svc:      svc,
		ready:    opts.Ready,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(),
		caches:   cache.NewManager(),
		now:      time.Now,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	if svc.Settings != nil {
		s.caches.Register(svc.Settings.Cache())
	}
	s.caches.StartCleanup(cacheCleanupInterval)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/categories", s.handleListCategories)
	api.HandleFunc("POST /api/categories", s.handleCreateCategory)
	api.HandleFunc("DELETE /api/categories/{type}/{name}", s.handleDeleteCategory)
	api.HandleFunc("POST /api/transactions", s.handleRecordTransaction)
	api.HandleFunc("DELETE /api/transactions/{id}", s.handleRemoveTransaction)
	api.HandleFunc("GET /api/transactions-history", s.handleTransactionHistory)
	api.HandleFunc("GET /api/stats/balance", s.handleBalance)
	api.HandleFunc("GET /api/stats/categories", s.handleCategoryTotals)
	api.HandleFunc("GET /api/history-periods", s.handleHistoryPeriods)
	api.HandleFunc("GET /api/history-data", s.handleHistoryData)
	api.HandleFunc("GET /api/user-settings", s.handleGetSettings)
	api.HandleFunc("PUT /api/user-settings", s.handleUpdateSettings)

	var protected http.Handler = s.limiter.Middleware(mutationKey, writeRateLimited)(api)
	if opts.Auth != nil {
		protected = opts.Auth.Middleware(writeUnauthorized)(protected)
	} else {
		logger.Warn("API authentication disabled")
	}

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", handleHealth)
	root.HandleFunc("GET /readyz", s.handleReady)
	root.Handle("/api/", log.ComponentMiddleware(log.ComponentHTTP)(protected))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.tracer.Middleware(s.detector.Middleware(headers.Middleware(root))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// mutationKey limits writes per owner. Reads are not limited.
func mutationKey(r *http.Request) string {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ""
	}
	owner, err := auth.OwnerFromContext(r.Context())
	if err != nil {
		return ""
	}
	return owner
}

// Shutdown stops background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Metrics returns a snapshot of the request, rate limit and detection counters.
func (s *Server) Metrics() (trace.Metrics, ratelimit.Metrics, security.DetectionMetrics) {
	return s.tracer.GetMetrics(), s.limiter.GetMetrics(), s.detector.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// owner returns the authenticated owner or writes a 401.
func (s *Server) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner, err := auth.OwnerFromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	return owner, true
}

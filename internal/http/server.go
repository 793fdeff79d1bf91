// Package http exposes the JSON API: expense capture and editing, summary
// aggregation, budgets, trips, categories, sign-in and the live event
// stream.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kharcha/internal/aggregate"
	"kharcha/internal/budget"
	"kharcha/internal/cache"
	"kharcha/internal/core"
	"kharcha/internal/identity"
	"kharcha/internal/log"
	"kharcha/internal/metrics"
	"kharcha/internal/middleware/ratelimit"
	"kharcha/internal/notify"
	"kharcha/internal/services"
	"kharcha/internal/trips"
)

type Server struct {
	http.Server

	expenses   *services.ExpenseService
	categories *services.CategoryService
	trips      *trips.Service
	ledger     *budget.Ledger
	identity   *identity.Service
	bus        notify.Bus
	metrics    *metrics.Metrics
	logger     *log.Logger

	limiter *ratelimit.Limiter

	// Read caches, keyed by view fingerprint and invalidated on writes.
	summaryCache  *cache.LRUCache[aggregate.Summary]
	categoryCache *cache.LRUCache[[]core.Category]
	cacheManager  *cache.Manager
	gens          generations

	shutdownOnce sync.Once
}

// NewServer wires routes, middleware and caches into a ready-to-run server.
func NewServer(
	addr string,
	expenses *services.ExpenseService,
	categories *services.CategoryService,
	tripSvc *trips.Service,
	ledger *budget.Ledger,
	ident *identity.Service,
	bus notify.Bus,
	m *metrics.Metrics,
	logger *log.Logger,
) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0, // the SSE stream holds connections open
		},
		expenses:      expenses,
		categories:    categories,
		trips:         tripSvc,
		ledger:        ledger,
		identity:      ident,
		bus:           bus,
		metrics:       m,
		logger:        logger.WithComponent("http"),
		limiter:       ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		summaryCache:  cache.NewLRUCache[aggregate.Summary](200, 5*time.Minute),
		categoryCache: cache.NewLRUCache[[]core.Category](100, 5*time.Minute),
		cacheManager:  cache.NewManager(logger),
	}
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.Register(s.categoryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/auth/google", s.wrap(s.handleGoogleSignIn))

	mux.HandleFunc("GET /api/expenses", s.wrap(s.handleListExpenses))
	mux.HandleFunc("POST /api/expenses", s.wrap(s.handleCreateExpense))
	mux.HandleFunc("PUT /api/expenses/{id}", s.wrap(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.wrap(s.handleDeleteExpense))

	mux.HandleFunc("GET /api/summary", s.wrap(s.handleSummary))

	mux.HandleFunc("GET /api/budget", s.wrap(s.handleGetBudget))
	mux.HandleFunc("PUT /api/budget", s.wrap(s.handleSetBudget))

	mux.HandleFunc("GET /api/trips", s.wrap(s.handleListTrips))
	mux.HandleFunc("POST /api/trips", s.wrap(s.handleCreateTrip))
	mux.HandleFunc("DELETE /api/trips/{id}", s.wrap(s.handleDeleteTrip))

	mux.HandleFunc("GET /api/categories", s.wrap(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.wrap(s.handleCreateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.wrap(s.handleDeleteCategory))

	mux.HandleFunc("GET /api/events", s.wrap(s.handleEvents))

	return s
}

// Shutdown stops the HTTP listener and the background cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.cacheManager.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// wrap applies the shared middleware: request id, owner resolution, write
// rate limiting, security headers, access log and latency metrics.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := ratelimit.ClientIP(r)

		ctx := context.WithValue(r.Context(), requestIDKey{}, generateRequestID())

		owner, err := s.identity.Owner(bearerToken(r))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx = context.WithValue(ctx, ownerKey{}, owner)
		r = r.WithContext(ctx)

		if isWrite(r.Method) && !s.limiter.Allow(clientIP) {
			s.logger.WarnContext(ctx, "rate limit exceeded", "client_ip", clientIP, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.ObserveRequest(r.Method, r.URL.Path, rw.statusCode, elapsed)
		}
		s.logger.InfoContext(ctx, "request completed",
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", elapsed.Milliseconds(),
			"client_ip", clientIP)
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the underlying writer so the SSE stream works through
// the middleware wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Package gateway is the HTTP surface of the payment engine: turn metering,
// settlement submission, session stats and the delegated-authorization API.
package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hoddukzoa12/openclaw/internal/allowance"
	"github.com/hoddukzoa12/openclaw/internal/config"
	"github.com/hoddukzoa12/openclaw/internal/ledger"
	"github.com/hoddukzoa12/openclaw/internal/paywall"
	"github.com/hoddukzoa12/openclaw/internal/verify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Gateway handles API requests.
type Gateway struct {
	sessions   *ledger.Ledger
	paywall    *paywall.Service
	verifier   *verify.Verifier
	allowances *allowance.Engine
	paylinks   *Paylinker
	policy     config.PaymentPolicy
	logger     *zap.Logger
	router     *chi.Mux
}

// New creates the API gateway and wires its routes.
func New(
	sessions *ledger.Ledger,
	pw *paywall.Service,
	verifier *verify.Verifier,
	allowances *allowance.Engine,
	policy config.PaymentPolicy,
	logger *zap.Logger,
) *Gateway {
	g := &Gateway{
		sessions:   sessions,
		paywall:    pw,
		verifier:   verifier,
		allowances: allowances,
		paylinks:   NewPaylinker(policy.PaylinkSecret, policy.PaylinkBaseURL),
		policy:     policy,
		logger:     logger,
		router:     chi.NewRouter(),
	}

	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.Use(middleware.RequestID)
	g.router.Use(middleware.RealIP)
	g.router.Use(g.loggerMiddleware)
	g.router.Use(g.metricsMiddleware)
	g.router.Use(middleware.Recoverer)
	g.router.Use(middleware.Timeout(60 * time.Second))

	g.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	g.router.Handle("/metrics", promhttp.Handler())
	g.router.Get("/healthz", g.handleHealth)

	// Metering and settlement
	g.router.Post("/v1/turns", g.handleTurn)
	g.router.Get("/v1/sessions/{key}", g.handleSessionStats)
	g.router.Get("/v1/payments/{id}", g.handleGetPayment)
	g.router.Post("/v1/payments/{id}/settle", g.handleSettle)
	g.router.Post("/v1/settlements/tx", g.handleTxSettle)
	g.router.Get("/v1/paylinks/resolve", g.handleResolvePaylink)

	// Delegated authorization
	g.router.Post("/v1/allowances", g.handleRegisterAllowance)
	g.router.Post("/v1/allowances/check", g.handleCheckAllowance)
	g.router.Post("/v1/allowances/charge", g.handleCharge)
	g.router.Post("/v1/allowances/queue", g.handleQueueCharge)
	g.router.Post("/v1/allowances/queue/drain", g.handleDrainQueue)
	g.router.Get("/v1/allowances/{user}/{address}", g.handleAllowanceStats)
	g.router.Delete("/v1/allowances/{user}/{address}", g.handleRevokeAllowance)
	g.router.Get("/v1/wallets/{address}/approval-plan", g.handleApprovalPlan)
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// Middleware

func (g *Gateway) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		g.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

func (g *Gateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := strconv.Itoa(ww.Status())

		// Record the route pattern, not the raw path, to keep cardinality low.
		routePath := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				routePath = pattern
			}
		}

		httpRequestsTotal.WithLabelValues(r.Method, routePath, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePath, status).Observe(time.Since(start).Seconds())
	})
}

// Utility methods

func (g *Gateway) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (g *Gateway) writeError(w http.ResponseWriter, statusCode int, message string) {
	g.writeJSON(w, statusCode, map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"type":    "invalid_request_error",
		},
	})
}

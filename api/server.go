/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:    Unique ID per request for tracing
  2. RealIP:       Client address from proxy headers
  3. RequestLog:   zap access log (method, path, status, duration, request ID)
  4. Recoverer:    Panic recovery (500 instead of crash)
  5. CORS:         Cross-origin requests for the HR portal
  6. Authenticate: Bearer JWT on everything under /api

ROUTE GROUPS:
  /health               Liveness + database ping (no auth)
  /api/categories       Catalog
  /api/employees/*      Employee records, balances, reports
  /api/requests/*       Leave request lifecycle
  /api/accrual/*        Accrual runs (HR)
  /api/expiry/*         Alerts and sweep (HR)
  /api/audit            Audit trail (HR)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig carries the settings the router needs from config.Config.
type RouterConfig struct {
	JWTSecret   string
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret))

		r.Get("/categories", h.ListCategories)

		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.With(RequireAdmin).Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balances", h.GetBalances)
			r.Get("/{id}/history", h.GetHistory)
			r.Get("/{id}/grants", h.GetGrants)
			r.Post("/{id}/credits", h.GrantCredit)
			r.Get("/{id}/statement.pdf", h.BalanceStatement)
			r.Get("/{id}/history.xlsx", h.HistoryWorkbook)
		})

		// Request routes
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.SubmitRequest)
			r.Get("/", h.ListRequests)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
			r.Post("/{id}/approvals", h.DecideRequest)
		})

		// HR operations
		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Post("/accrual/runs", h.RunAccrual)
			r.Get("/accrual/runs", h.ListAccrualRuns)
			r.Get("/expiry/alerts", h.ListAlerts)
			r.Get("/expiry/alerts.xlsx", h.AlertsWorkbook)
			r.Post("/expiry/alerts/dispatch", h.DispatchAlerts)
			r.Post("/expiry/sweep", h.SweepExpired)
			r.Get("/audit", h.ListAudit)
		})
	})

	return r
}

// RequestLogger writes one structured access-log line per request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if status >= http.StatusInternalServerError {
				logger.Error("http request", fields...)
				return
			}
			logger.Info("http request", fields...)
		})
	}
}

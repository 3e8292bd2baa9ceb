package http

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// RateLimits are requests per minute per client for each route group. Zero
// disables the limit for that group.
type RateLimits struct {
	Payment int
	Status  int
	Webhook int
	Admin   int
}

type RouterConfig struct {
	Payments    PaymentService
	Lookup      TransactionLookup
	Webhooks    WebhookProcessor
	Admin       AdminOperations
	Permissions PermissionChecker
	JWTSecret   []byte
	Limits      RateLimits
	Logger      *slog.Logger
}

// httpLogger is a middleware that logs HTTP requests using slog.
func httpLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", chiMiddleware.GetReqID(r.Context())),
				slog.String("remote_addr", r.RemoteAddr),
			)
		}
		return http.HandlerFunc(fn)
	}
}

type limitResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// rateLimit keys on client address and endpoint, so each route keeps its own
// budget per caller.
func rateLimit(perMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := time.Minute
	minutes := int(math.Ceil(window.Minutes()))
	return httprate.Limit(perMinute, window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			logger.WarnContext(r.Context(), "Rate limit exceeded", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			writeJSON(w, http.StatusTooManyRequests, limitResponse{
				Error:   "Too Many Attempts",
				Message: fmt.Sprintf("Too many requests. Please try again in %d minutes.", minutes),
			})
		}),
	)
}

// NewRouter wires the public payment API, provider webhooks and the admin
// API onto one chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger.With("component", "http_router")
	validate := NewValidator()

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(httpLogger(logger))
	r.Use(MetricsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	payments := NewPaymentHandler(cfg.Payments, cfg.Lookup, validate, cfg.Logger)
	webhooks := NewWebhookHandler(cfg.Webhooks, cfg.Logger)

	r.Route("/api/mobile-wallet", func(r chi.Router) {
		r.With(rateLimit(cfg.Limits.Payment, logger)).Post("/payment", payments.Initiate)
		r.With(rateLimit(cfg.Limits.Status, logger)).Get("/payment/{transactionId}/status", payments.Status)
		r.With(rateLimit(cfg.Limits.Webhook, logger)).Post("/webhook/{provider}", webhooks.HandleWebhook)
	})

	if cfg.Admin != nil {
		checker := cfg.Permissions
		if checker == nil {
			checker = ClaimsPermissionChecker{}
		}
		admin := NewAdminHandler(cfg.Admin, validate, cfg.Logger)
		r.Route("/admin/mobile-wallet", func(r chi.Router) {
			r.Use(rateLimit(cfg.Limits.Admin, logger))
			r.Use(AuthMiddleware(cfg.JWTSecret, logger))
			r.Group(func(r chi.Router) {
				r.Use(RequirePermission(PermissionView, checker, logger))
				r.Get("/transactions", admin.List)
				r.Get("/transactions/{transactionId}", admin.Show)
				r.Get("/reports/transactions", admin.Report)
			})
			r.With(RequirePermission(PermissionManage, checker, logger)).Put("/transactions/{transactionId}", admin.Update)
		})
	}
	return r
}

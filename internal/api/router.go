package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/api/handler"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/api/middleware"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/api/spec"
)

// Deps carries the constructed handlers into the router. Everything is
// wired explicitly by the caller.
type Deps struct {
	Webhook   *handler.WebhookHandler
	Checkout  *handler.CheckoutHandler
	Status    *handler.StatusHandler
	Health    *handler.HealthHandler
	Logger    *zap.Logger
	PublicRPS int
}

// NewRouter mounts the gateway endpoints plus the operational surface.
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(d.Logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RecoverMiddleware(d.Logger))

	r.Route("/bytepay/v1", func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(d.PublicRPS))

		r.Post("/checkout", d.Checkout.Checkout)
		r.Post("/available", d.Checkout.Available)
		r.Post("/webhook", d.Webhook.Handle)
		r.Post("/payment-status", d.Status.PaymentStatus)
		r.Post("/popup-closed", d.Status.PopupClosed)
	})

	r.Get("/healthz", d.Health.Live)
	r.Get("/readyz", d.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())

	return r
}

package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/storefront/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Handlers struct {
	Cart     *CartHandler
	Checkout *CheckoutHandler
	Orders   *OrderHandler
	Payments *PaymentHandler
	Admin    *AdminHandler
}

type RouterConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// Ready reports dependency health for /health. Nil means always healthy.
	Ready func(r *http.Request) error
}

// NewRouter mounts every route under /api/v1. The payment callback and the
// pay-page return routes are reachable without identity headers.
func NewRouter(h Handlers, cfg RouterConfig) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Nop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(cfg.Metrics.Middleware)
	r.Use(middleware.RequestSize(cfg.MaxBodyBytes))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(req); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			// Gateway-facing routes carry no user identity.
			r.Post("/callback", h.Payments.Callback)
			r.Get("/success", h.Payments.Return)
			r.Post("/success", h.Payments.Return)
			r.Get("/failure", h.Payments.Return)
			r.Post("/failure", h.Payments.Return)

			r.Group(func(r chi.Router) {
				r.Use(IdentityMiddleware)
				r.Post("/initiate", h.Payments.Initiate)
				r.Get("/verify/{merchantTransactionId}", h.Payments.Verify)
				r.Post("/refund", h.Payments.Refund)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(IdentityMiddleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Delete("/", h.Cart.ClearCart)
				r.Post("/items", h.Cart.AddItem)
				r.Patch("/items/{productID}/{sku}/increase", h.Cart.Increase)
				r.Patch("/items/{productID}/{sku}/decrease", h.Cart.Decrease)
				r.Delete("/items/{productID}/{sku}", h.Cart.RemoveItem)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/", h.Checkout.Create)
				r.Get("/{id}", h.Checkout.Get)
				r.Put("/{id}/address", h.Checkout.UpdateAddress)
				r.Put("/{id}/payment-method", h.Checkout.UpdatePaymentMethod)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.Orders.Create)
				r.Get("/", h.Orders.List)
				r.Get("/{id}", h.Orders.Get)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Post("/payments/{merchantTransactionId}/status", h.Admin.OverrideStatus)
				r.Post("/orders/{id}/finalize", h.Admin.FinalizeOrder)
				r.Get("/incidents", h.Admin.ListIncidents)
				r.Post("/incidents/{id}/resolve", h.Admin.ResolveIncident)
			})
		})
	})

	return otelhttp.NewHandler(r, "storefront",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}

package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	handler "github.com/vasiliy-maslov/storefront/internal/handler/http"
)

const requestTimeout = 30 * time.Second

type Handlers struct {
	Catalog *handler.CatalogHandler
	Cart    *handler.CartHandler
	Order   *handler.OrderHandler
	Payment *handler.PaymentHandler
	User    *handler.UserHandler
}

type Options struct {
	AllowedOrigins []string
	// Limiter guards the payment and auth endpoints; nil disables it.
	Limiter *handler.RateLimiter
	// HealthCheck reports backend readiness; nil always reports healthy.
	HealthCheck func(r *http.Request) error
}

// NewRouter mounts every API route under /api and wraps the router in CORS.
func NewRouter(h Handlers, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(handler.SecurityHeaders)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			if opts.HealthCheck != nil {
				if err := opts.HealthCheck(r); err != nil {
					w.WriteHeader(http.StatusServiceUnavailable)
					_, _ = w.Write([]byte("UNAVAILABLE"))
					return
				}
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("OK"))
		})

		// The webhook is called by the gateway, not by browsers.
		h.Payment.RegisterWebhookRoutes(api)

		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(requestTimeout))
			h.Catalog.RegisterRoutes(g)
			h.Cart.RegisterRoutes(g)
			h.Order.RegisterRoutes(g)
		})

		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(requestTimeout))
			if opts.Limiter != nil {
				g.Use(opts.Limiter.Limit)
			}
			h.Payment.RegisterRoutes(g)
			h.User.RegisterRoutes(g)
		})
	})

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(r)
}

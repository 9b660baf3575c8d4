package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/checkout"
	"github.com/vasiliy-maslov/storefront/internal/config"
	"github.com/vasiliy-maslov/storefront/internal/db"
	handler "github.com/vasiliy-maslov/storefront/internal/handler/http"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/storage/memory"
	"github.com/vasiliy-maslov/storefront/internal/transport"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

type repositories struct {
	catalog  catalog.Repository
	cart     cart.Repository
	order    order.Repository
	payment  payment.Repository
	user     user.Repository
	pingFunc func(ctx context.Context) error
	close    func()
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", cfg.App.Name).Logger()
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.Storage == config.StorageMemory {
		store := memory.New()
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		return &repositories{
			catalog:  store,
			cart:     store,
			order:    store,
			payment:  store,
			user:     store,
			pingFunc: func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dbConn, err := db.New(connectCtx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	if err := dbConn.ApplyMigrations(cfg.Postgres); err != nil {
		dbConn.Close()
		return nil, err
	}

	return &repositories{
		catalog:  catalog.NewRepository(dbConn.Pool),
		cart:     cart.NewRepository(dbConn.Pool),
		order:    order.NewRepository(dbConn.Pool),
		payment:  payment.NewRepository(dbConn.Pool),
		user:     user.NewRepository(dbConn.Pool),
		pingFunc: dbConn.Pool.Ping,
		close:    dbConn.Close,
	}, nil
}

func openProductCache(ctx context.Context, cfg *config.Config) (catalog.ProductCache, func()) {
	if cfg.Redis.Addr == "" {
		return catalog.NoopProductCache(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unavailable, product cache disabled")
		_ = client.Close()
		return catalog.NoopProductCache(), func() {}
	}

	log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.CacheTTL).Msg("Product cache enabled")
	return catalog.NewRedisProductCache(client, cfg.Redis.CacheTTL), func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg)
	log.Info().Str("storage", cfg.Storage).Msg("Storefront starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer repos.close()

	productCache, closeCache := openProductCache(ctx, cfg)
	defer closeCache()

	if cfg.Stripe.SecretKey == "" {
		log.Warn().Msg("STRIPE_SECRET_KEY is not set, payment endpoints will fail")
	}
	gateway := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		APIURL:        cfg.Stripe.APIURL,
	})

	catalogService := catalog.NewService(repos.catalog, productCache)
	cartService := cart.NewService(repos.cart, repos.catalog)
	orderService := order.NewService(repos.order, repos.catalog, productCache)
	paymentService := payment.NewService(repos.payment)
	userService := user.NewService(repos.user)
	checkoutService := checkout.NewService(orderService, cartService, paymentService, gateway, checkout.Config{
		Currency:      cfg.Stripe.Currency,
		PaymentExpiry: cfg.Payment.Expiry,
	})

	if cfg.SeedCatalog {
		if err := catalog.Seed(ctx, catalogService); err != nil {
			log.Fatal().Err(err).Msg("Failed to seed catalog")
		}
	}

	router := transport.NewRouter(transport.Handlers{
		Catalog: handler.NewCatalogHandler(catalogService),
		Cart:    handler.NewCartHandler(cartService),
		Order:   handler.NewOrderHandler(orderService, checkoutService),
		Payment: handler.NewPaymentHandler(checkoutService, paymentService),
		User:    handler.NewUserHandler(userService),
	}, transport.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Limiter:        handler.NewRateLimiter(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst),
		HealthCheck: func(r *http.Request) error {
			return repos.pingFunc(r.Context())
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		checkout.RunSweeper(ctx, checkoutService, cfg.Payment.SweepInterval)
	}()

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
	}
	wg.Wait()
	log.Info().Msg("Server stopped")
}

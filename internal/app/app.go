// Package app wires configuration, storage, domain services, and the HTTP
// server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/shipping"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/provider"
	"github.com/xenking/storefront/internal/storage/postgres"
	"github.com/xenking/storefront/internal/storage/rediscache"
	"github.com/xenking/storefront/pkg/health"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the cart sweeper,
// and handles graceful shutdown. It is the single wiring point.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	taxRate, err := cfg.TaxRate()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories. The cart repository optionally gets a Redis cache layer.
	productRepo := postgres.NewProductRepository(pool)
	shippingRepo := postgres.NewShippingRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	var cartRepo cart.Repository = postgres.NewCartRepository(pool)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return errors.Wrap(err, "parse redis URL")
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 5*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		cartRepo = rediscache.New(cartRepo, rdb)
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	resolver := shipping.NewResolver(shippingRepo)
	cartService := cart.NewService(cartRepo, productRepo, resolver, taxRate)
	paymentClient := provider.NewClient(cfg.Payment.BaseURL, cfg.Payment.APIKey, cfg.Payment.Timeout)
	orchestrator := payment.NewOrchestrator(orderRepo, cartRepo, paymentClient, lg.Named("payment"))
	checkoutService := checkout.NewService(
		cartRepo, resolver, orderRepo, orchestrator,
		taxRate, cfg.Pricing.Currency, cfg.Payment.Timeout,
	)

	// HTTP surface: probes + API routes on one server.
	h := handler.New(
		handler.Config{
			ImageBaseURL:  cfg.ImageBaseURL,
			WebhookSecret: cfg.Payment.WebhookSecret,
		},
		productRepo, shippingRepo, cartService, checkoutService, orderRepo, orchestrator,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "X-User-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api",
				otelhttp.WithTracerProvider(m.TracerProvider()),
				otelhttp.WithMeterProvider(m.MeterProvider()),
			),
			httpmiddleware.LogRequests(),
		),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	// Expired anonymous carts are swept periodically.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.Cart.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				n, err := cartService.SweepExpired(ctx, cfg.Cart.Retention)
				if err != nil {
					lg.Warn("Cart sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					lg.Info("Swept expired carts", zap.Int64("count", n))
				}
			}
		}
	})

	// Graceful shutdown: drain readiness first, then stop the server.
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})

	return g.Wait()
}

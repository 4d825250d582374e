package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/apparel-storefront/internal/domain/coupon"
	"github.com/xenking/apparel-storefront/internal/domain/personalization"
	"github.com/xenking/apparel-storefront/internal/handler"
	"github.com/xenking/apparel-storefront/internal/session"
	"github.com/xenking/apparel-storefront/internal/storage/kv"
	"github.com/xenking/apparel-storefront/internal/storage/postgres"
	"github.com/xenking/apparel-storefront/pkg/health"
	"github.com/xenking/apparel-storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	calc, err := cfg.Pricing.Calculator()
	if err != nil {
		return errors.Wrap(err, "pricing config")
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	kvStore := postgres.NewKVStore(pool)

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddReadinessCheck("kv", 5*time.Second, kvRoundTrip(kvStore))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)

	sessions := session.NewRegistry(kvStore, lg.Named("session"), session.Config{
		TTL:         cfg.Session.TTL,
		MaxSessions: cfg.Session.MaxSessions,
		Calculator:  calc,
	})
	go sessions.Run(ctx, cfg.Session.SweepInterval)
	go purgeExpired(ctx, lg, kvStore, cfg.Session.SweepInterval)

	h, err := handler.New(
		handler.Config{ImageBaseURL: cfg.ImageBaseURL, Calculator: calc},
		sessions,
		productRepo,
		coupon.NewBook(couponRepo),
		personalization.NewScorer(),
		m.MeterProvider().Meter("storefront"),
	)
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

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
				AllowHeaders:     []string{"Content-Type", handler.SessionHeader, httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.ClientMax,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.HeaderKeyFunc(handler.SessionHeader),
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}
	healthSvc.SetReady(true)

	shutdownDone := make(chan struct{})
	go func() {
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
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// kvRoundTrip writes and reads back a probe key.
func kvRoundTrip(store kv.Store) health.CheckFunc {
	const key = "health:probe"
	return func(ctx context.Context) error {
		want := []byte(time.Now().UTC().Format(time.RFC3339Nano))
		if err := store.Set(ctx, key, want, time.Minute); err != nil {
			return errors.Wrap(err, "set")
		}
		got, err := store.Get(ctx, key)
		if err != nil {
			return errors.Wrap(err, "get")
		}
		if string(got) != string(want) {
			return errors.New("read back a different value")
		}
		return nil
	}
}

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

// purgeExpired deletes expired kv rows every interval until ctx is done.
func purgeExpired(ctx context.Context, lg *zap.Logger, p purger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				lg.Warn("Failed to purge expired kv entries", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Debug("Purged expired kv entries", zap.Int64("count", n))
			}
		}
	}
}

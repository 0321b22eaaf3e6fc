package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/autoflowlabs/consultancy-crm/internal/api/router"
	"github.com/autoflowlabs/consultancy-crm/internal/app/bootstrap"
	"github.com/autoflowlabs/consultancy-crm/internal/appointments"
	"github.com/autoflowlabs/consultancy-crm/internal/auth"
	"github.com/autoflowlabs/consultancy-crm/internal/billing"
	"github.com/autoflowlabs/consultancy-crm/internal/chat"
	appconfig "github.com/autoflowlabs/consultancy-crm/internal/config"
	"github.com/autoflowlabs/consultancy-crm/internal/customers"
	"github.com/autoflowlabs/consultancy-crm/internal/dashboard"
	"github.com/autoflowlabs/consultancy-crm/internal/events"
	"github.com/autoflowlabs/consultancy-crm/internal/notify"
	"github.com/autoflowlabs/consultancy-crm/internal/observability/metrics"
	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "consultancy-crm-api",
	})
	logger.Info("starting consultancy-crm API server", "env", cfg.Env, "port", cfg.Port)

	if cfg.IsProduction() && cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required in production")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory repositories")
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	app, err := buildApp(ctx, cfg, pool, redisClient, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	if app.deliverer != nil {
		go app.deliverer.Start(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type application struct {
	handler   http.Handler
	bus       *events.Bus
	stores    *bootstrap.Stores
	deliverer *events.Deliverer
}

// buildApp wires every service onto the chosen stores. pool and redisClient
// may be nil.
func buildApp(ctx context.Context, cfg *appconfig.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) (*application, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	schedulingMetrics := metrics.NewSchedulingMetrics(reg)
	crmMetrics := metrics.NewCRMMetrics(reg)
	httpMetrics := metrics.NewHTTPMetrics(reg)

	defaults := bootstrap.SchedulingDefaults(cfg)
	stores := bootstrap.BuildStores(pool, bootstrap.SQLFromPool(pool), redisClient, defaults)
	bus := events.NewBus(logger)
	publisher := stores.Publisher(bus)

	var deliverer *events.Deliverer
	if stores.Outbox != nil {
		deliverer = events.NewDeliverer(stores.Outbox, bus, logger)
		if cfg.OutboxPollInterval > 0 {
			deliverer = deliverer.WithInterval(cfg.OutboxPollInterval)
		}
	}

	notifier := notify.NewService(bootstrap.BuildEmailSender(ctx, cfg, logger), cfg.NotifyAdminEmail, stores.Customers, logger).
		WithDeliveryLog(stores.Processed)
	notifier.Register(bus)

	archiveStore, err := bootstrap.BuildArchiveStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	var archiver chat.TranscriptArchiver
	if archiveStore != nil {
		archiver = archiveStore
	}

	customerSvc := customers.NewService(stores.Customers, publisher, crmMetrics, logger)
	apptSvc := appointments.NewService(stores.Appointments, stores.Settings, stores.Customers, publisher, schedulingMetrics, logger)
	chatSvc := chat.NewService(stores.Chat, customerSvc, archiver, crmMetrics, logger)

	sessions, fakeCheckout := bootstrap.BuildSessionCreator(cfg, logger)
	successURL := cfg.StripeSuccessURL
	if successURL == "" {
		successURL = cfg.PublicBaseURL + "/portal/billing?status=success"
	}
	cancelURL := cfg.StripeCancelURL
	if cancelURL == "" {
		cancelURL = cfg.PublicBaseURL + "/portal/billing?status=cancelled"
	}
	checkout := billing.NewCheckoutService(stores.Payments, sessions, stores.Customers, billing.CheckoutConfig{
		Currency:   cfg.BillingCurrency,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	}, crmMetrics, logger)
	var fakeHandler *billing.FakeCheckoutHandler
	if fakeCheckout {
		fakeHandler = billing.NewFakeCheckoutHandler(stores.Payments, publisher, successURL, crmMetrics, logger)
	}

	if _, err := auth.EnsureAdmin(ctx, stores.Accounts, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return nil, err
	}
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)

	loc, err := time.LoadLocation(defaults.Timezone)
	if err != nil {
		logger.Warn("invalid business timezone, dashboard uses UTC", "timezone", defaults.Timezone, "error", err)
		loc = time.UTC
	}

	checks := map[string]router.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	handler := router.New(&router.Config{
		Logger:             logger,
		Tokens:             tokens,
		AuthHandler:        auth.NewHandler(stores.Accounts, tokens, customerSvc, logger),
		CustomersHandler:   customers.NewHandler(customerSvc, logger),
		AppointmentHandler: appointments.NewHandler(apptSvc, logger),
		SettingsHandler:    scheduling.NewSettingsHandler(stores.Settings, logger),
		ChatHandler:        chat.NewHandler(chatSvc, cfg.CORSAllowedOrigins, logger),
		BillingHandler:     billing.NewHandler(checkout, logger),
		StripeWebhook:      billing.NewWebhookHandler(cfg.StripeWebhookSecret, stores.Payments, stores.Processed, publisher, crmMetrics, logger),
		FakeCheckout:       fakeHandler,
		DashboardHandler:   dashboard.NewHandler(stores.Dashboard, chatSvc, loc, cfg.BillingCurrency, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		HTTPMetrics:        httpMetrics,
		HealthChecks:       checks,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	return &application{handler: handler, bus: bus, stores: stores, deliverer: deliverer}, nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ubva/crm-scheduler/cmd/mainconfig"
	"github.com/ubva/crm-scheduler/internal/api/router"
	"github.com/ubva/crm-scheduler/internal/app/bootstrap"
	"github.com/ubva/crm-scheduler/internal/appointments"
	appconfig "github.com/ubva/crm-scheduler/internal/config"
	"github.com/ubva/crm-scheduler/internal/eligibility"
	"github.com/ubva/crm-scheduler/internal/events"
	httpmiddleware "github.com/ubva/crm-scheduler/internal/http/middleware"
	"github.com/ubva/crm-scheduler/internal/notify"
	"github.com/ubva/crm-scheduler/internal/observability/metrics"
	"github.com/ubva/crm-scheduler/internal/realtime"
	"github.com/ubva/crm-scheduler/internal/reports"
	"github.com/ubva/crm-scheduler/internal/settings"
	"github.com/ubva/crm-scheduler/pkg/logging"
)

func main() {
	cfg, err := mainconfig.Load()
	if err != nil {
		logging.Default().Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting crm scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise application", "error", err)
		os.Exit(1)
	}
	defer app.Close()
	app.startBackground(ctx)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     app.handler,
		ReadTimeout: 15 * time.Second,
		// Websocket connections are long lived; request timeouts come from
		// the router's Timeout middleware instead.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	app.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	app.wait()
	logger.Info("server exited")
}

// application is the fully wired API process.
type application struct {
	handler http.Handler
	hub     *realtime.Hub
	service *appointments.Service

	background []func(context.Context)
	closers    []func()
	wg         sync.WaitGroup
}

func buildApplication(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*application, error) {
	app := &application{}

	metricsHandler, schedulingMetrics := setupMetrics()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var repo appointments.Repository
	if pool != nil {
		app.closers = append(app.closers, pool.Close)
		repo = appointments.NewPostgresRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set; appointments are kept in memory")
		repo = appointments.NewInMemoryRepository()
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}

	settingsStore := bootstrap.BuildSettingsStore(cfg, redisClient)
	baseRules := bootstrap.BaseRules(cfg)
	provider := settings.NewProvider(settingsStore, baseRules)

	app.hub = realtime.NewHub(realtime.HubConfig{
		Logger:         logger.Component("realtime"),
		Metrics:        schedulingMetrics,
		PollInterval:   cfg.SchedulePollInterval,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	notifier := setupNotifier(app, redisClient, logger)

	app.service = appointments.NewService(repo, notifier, logger.Component("appointments")).
		WithMetrics(schedulingMetrics).
		WithDefaultDuration(cfg.DefaultDurationMinutes)

	if pool != nil {
		setupOutbound(app, cfg, pool, provider.Location, schedulingMetrics, logger)
	}
	if err := setupEmail(ctx, app, cfg, provider.Location, logger); err != nil {
		return nil, err
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	app.background = append(app.background, func(ctx context.Context) {
		limiter.RunEviction(ctx, time.Minute)
	})

	apptHandler := appointments.NewHandler(app.service, provider, logger.Component("http")).
		WithFallback(baseRules, eligibility.DefaultWindow())
	routerCfg := &router.Config{
		Logger:              logger,
		AppointmentsHandler: apptHandler,
		SettingsHandler:     settings.NewHandler(settingsStore, app.service, logger.Component("settings")),
		Realtime:            app.hub,
		MetricsHandler:      metricsHandler,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		AutomationAPIKey:    cfg.AutomationAPIKey,
		RateLimiter:         limiter,
		HealthChecks:        healthChecks(pool, redisClient),
	}
	if pool != nil {
		sqlDB := stdlib.OpenDBFromPool(pool)
		app.closers = append(app.closers, func() { _ = sqlDB.Close() })
		routerCfg.StatsHandler = setupStats(sqlDB, provider.Location, logger)
	}
	if strings.TrimSpace(cfg.AutomationAPIKey) == "" {
		logger.Warn("AUTOMATION_API_KEY not set; export endpoints will reject every request")
	}

	app.handler = router.New(routerCfg)
	return app, nil
}

// setupMetrics builds a private registry so tests can build more than one.
func setupMetrics() (http.Handler, *metrics.SchedulingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewSchedulingMetrics(reg)
}

// setupNotifier publishes through Redis when available so every replica's
// hub sees the event; otherwise the local hub is the notifier.
func setupNotifier(app *application, redisClient *redis.Client, logger *logging.Logger) appointments.Notifier {
	if redisClient == nil {
		return app.hub
	}
	relay := realtime.NewRelay(redisClient, realtime.DefaultChannel, app.hub, logger.Component("realtime"))
	app.background = append(app.background, func(ctx context.Context) {
		if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("realtime relay stopped", "error", err)
		}
	})
	return realtime.NewRedisNotifier(redisClient, realtime.DefaultChannel)
}

func setupOutbound(app *application, cfg *appconfig.Config, pool *pgxpool.Pool, location appointments.LocationFunc, m *metrics.SchedulingMetrics, logger *logging.Logger) {
	outbox := events.NewOutboxStore(pool)
	app.service.AddBookingListener(events.NewBookingConfirmations(outbox, location, logger.Component("outbox")))

	if deliverer := newDeliverer(cfg, outbox, m, logger); deliverer != nil {
		app.background = append(app.background, deliverer.Start)
	}
}

// newDeliverer returns nil only when there is no gateway URL. The token is
// optional since some gateways carry it in the URL path.
func newDeliverer(cfg *appconfig.Config, queue events.Queue, m *metrics.SchedulingMetrics, logger *logging.Logger) *events.Deliverer {
	if strings.TrimSpace(cfg.ZAPIURL) == "" {
		logger.Warn("ZAPI_URL not set; booking confirmations stay queued")
		return nil
	}
	if strings.TrimSpace(cfg.ZAPIToken) == "" {
		logger.Warn("ZAPI_TOKEN not set; sending without an Authorization header")
	}
	return events.NewDeliverer(
		queue,
		events.NewZAPIHandler(cfg.ZAPIURL, cfg.ZAPIToken, &http.Client{Timeout: 15 * time.Second}),
		logger.Component("deliverer"),
	).WithBatchSize(int32(cfg.ZAPIBatchSize)).
		WithInterval(cfg.ZAPIPollInterval).
		WithMetrics(m)
}

func setupEmail(ctx context.Context, app *application, cfg *appconfig.Config, location appointments.LocationFunc, logger *logging.Logger) error {
	if strings.TrimSpace(cfg.BookingNotifyEmail) == "" {
		return nil
	}
	var ses notify.SESAPI
	if cfg.EmailProvider == "ses" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return err
		}
		ses = bootstrap.BuildSESClient(awsCfg, cfg)
	}
	sender := bootstrap.BuildEmailSender(cfg, ses, logger.Component("email"))
	if n := notify.NewBookingNotifier(sender, cfg.BookingNotifyEmail, location, logger.Component("email")); n != nil {
		app.service.AddBookingListener(n)
	}
	return nil
}

func setupStats(db *sql.DB, location appointments.LocationFunc, logger *logging.Logger) *reports.StatsHandler {
	return reports.NewStatsHandler(reports.NewStatsRepository(db), location, logger.Component("reports"))
}

func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}

func (a *application) startBackground(ctx context.Context) {
	for _, run := range a.background {
		a.wg.Add(1)
		go func(run func(context.Context)) {
			defer a.wg.Done()
			run(ctx)
		}(run)
	}
}

func (a *application) wait() {
	a.wg.Wait()
}

// Close releases pools and clients in reverse order of creation.
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	appaccounting "github.com/retailhub/backend/internal/application/accounting"
	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/infrastructure/cache"
	"github.com/retailhub/backend/internal/infrastructure/config"
	"github.com/retailhub/backend/internal/infrastructure/logger"
	"github.com/retailhub/backend/internal/infrastructure/migration"
	"github.com/retailhub/backend/internal/infrastructure/persistence"
	"github.com/retailhub/backend/internal/infrastructure/quickbooks"
	"github.com/retailhub/backend/internal/infrastructure/scheduler"
	"github.com/retailhub/backend/internal/infrastructure/telemetry"
	"github.com/retailhub/backend/internal/interfaces/http/handler"
	"github.com/retailhub/backend/internal/interfaces/http/middleware"
	"github.com/retailhub/backend/internal/interfaces/http/router"
	"github.com/retailhub/backend/migrations"
)

//	@title			Retail Accounting Sync API
//	@version		1.0
//	@description	Pushes retail products, customers and sales to the accounting platform
//	@BasePath		/api/v1

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	ctx := context.Background()

	tp, mp, lp := setupTelemetry(ctx, cfg, log)
	defer shutdownTelemetry(log, tp, mp, lp)
	log = lp.Bridge(log, logger.ParseLevel(cfg.Log.Level))

	log.Info("Starting accounting sync service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
		zap.String("quickbooks_environment", cfg.QuickBooks.Environment),
	)

	if cfg.Database.AutoMigrate {
		if err := runMigrations(&cfg.Database, log); err != nil {
			log.Fatal("Failed to apply schema migrations", zap.Error(err))
		}
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), 200*time.Millisecond)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	dbCfg := telemetry.DefaultDBConfig()
	dbCfg.TracingEnabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbCfg.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	var dbMeter metric.Meter
	if mp.IsEnabled() {
		dbMeter = mp.Meter("database")
	}
	dbMetrics, err := telemetry.InstrumentDB(db.DB, dbCfg, dbMeter, log)
	if err != nil {
		log.Fatal("Failed to instrument database", zap.Error(err))
	}
	if dbMetrics != nil {
		if sqlDB, err := db.DB.DB(); err == nil {
			dbMetrics.StartPoolStatsCollection(ctx, sqlDB)
		}
		defer dbMetrics.Stop()
	}

	// Repositories
	tokenRepo := persistence.NewGormTokenRepository(db.DB)
	mappingRepo := persistence.NewGormEntityMappingRepository(db.DB)
	syncLogRepo := persistence.NewGormSyncLogRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	customerRepo := persistence.NewGormCustomerRepository(db.DB)
	saleRepo := persistence.NewGormSaleRepository(db.DB)

	locker, closeLocker, err := cache.NewEntityLockerFactory(cfg.Redis, cfg.Sync,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateLocker()
	if err != nil {
		log.Fatal("Failed to create entity locker", zap.Error(err))
	}
	defer func() {
		if err := closeLocker(); err != nil {
			log.Error("Error closing entity locker", zap.Error(err))
		}
	}()

	var syncMetrics *telemetry.SyncMetrics
	if mp.IsEnabled() {
		syncMetrics, err = telemetry.NewSyncMetrics(telemetry.SyncMetricsConfig{
			Meter:  mp.Meter("accounting"),
			Logger: log,
		})
		if err != nil {
			log.Warn("Sync metrics disabled", zap.Error(err))
		}
	}

	// Accounting platform clients
	qbCfg := &quickbooks.Config{
		ClientID:     cfg.QuickBooks.ClientID,
		ClientSecret: cfg.QuickBooks.ClientSecret,
		RedirectURI:  cfg.QuickBooks.RedirectURI,
		Scopes:       cfg.QuickBooks.Scopes,
		Environment:  accounting.Environment(cfg.QuickBooks.Environment),
		APIBaseURL:   cfg.QuickBooks.APIBaseURL,
		AuthorizeURL: cfg.QuickBooks.AuthorizeURL,
		TokenURL:     cfg.QuickBooks.TokenURL,
		Timeout:      cfg.QuickBooks.RequestTimeout,
	}
	oauthClient, err := quickbooks.NewOAuthClient(qbCfg, log)
	if err != nil {
		log.Fatal("Invalid QuickBooks configuration", zap.Error(err))
	}

	tokenManager, err := appaccounting.NewTokenManager(tokenRepo, oauthClient,
		appaccounting.TokenManagerConfig{
			Environment: qbCfg.Environment,
			StateSecret: cfg.QuickBooks.StateSecret,
			StateTTL:    cfg.QuickBooks.StateTTL,
		},
		appaccounting.WithTokenLogger(log),
		appaccounting.WithTokenMetrics(syncMetrics),
	)
	if err != nil {
		log.Fatal("Failed to create token manager", zap.Error(err))
	}

	apiClient, err := quickbooks.NewClient(qbCfg, tokenManager, log)
	if err != nil {
		log.Fatal("Failed to create QuickBooks client", zap.Error(err))
	}

	// Application services
	mapper := appaccounting.NewEntityMapper(mappingRepo, locker)
	syncService := appaccounting.NewSyncService(appaccounting.SyncServiceDeps{
		Products:  productRepo,
		Customers: customerRepo,
		Sales:     saleRepo,
		Mapper:    mapper,
		Tokens:    tokenManager,
		Gateway:   apiClient,
		Logs:      syncLogRepo,
		Metrics:   syncMetrics,
		Logger:    log,
	}, appaccounting.SyncConfig{
		ItemType:           accounting.ItemType(cfg.QuickBooks.ItemType),
		IncomeAccountRef:   cfg.QuickBooks.IncomeAccountRef,
		AssetAccountRef:    cfg.QuickBooks.AssetAccountRef,
		ExpenseAccountRef:  cfg.QuickBooks.ExpenseAccountRef,
		DefaultCustomerRef: cfg.QuickBooks.DefaultCustomerRef,
		InvoiceDueDays:     cfg.QuickBooks.InvoiceDueDays,
		BatchSize:          cfg.Sync.BatchSize,
	})
	statusService := appaccounting.NewStatusService(tokenManager, productRepo, customerRepo, saleRepo,
		mapper, syncLogRepo, apiClient)
	reportService := appaccounting.NewReportService(apiClient)

	jobQueue, err := scheduler.NewSyncJobQueue(scheduler.SyncJobQueueConfig{
		Workers:        cfg.Sync.Workers,
		QueueSize:      cfg.Sync.QueueSize,
		MaxRetries:     cfg.Sync.MaxRetries,
		InitialBackoff: cfg.Sync.InitialBackoff,
		MaxBackoff:     cfg.Sync.MaxBackoff,
		JobTimeout:     cfg.Sync.JobTimeout,
		HistorySize:    cfg.Sync.HistorySize,
		AutoInterval:   cfg.Sync.AutoInterval,
	}, appaccounting.NewJobExecutor(syncService), log, scheduler.WithQueueMetrics(syncMetrics))
	if err != nil {
		log.Fatal("Invalid sync job queue configuration", zap.Error(err))
	}
	if err := jobQueue.Start(ctx); err != nil {
		log.Fatal("Failed to start sync job queue", zap.Error(err))
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := jobQueue.Stop(stopCtx); err != nil {
			log.Error("Sync job queue did not stop cleanly", zap.Error(err))
		}
	}()

	// Handlers
	accountingHandler := handler.NewAccountingHandler(handler.AccountingHandlerDeps{
		Connection:          tokenManager,
		Sync:                syncService,
		Status:              statusService,
		Reports:             reportService,
		Jobs:                jobQueue,
		CallbackRedirectURL: cfg.QuickBooks.CallbackRedirectURL,
	})
	systemHandler := handler.NewSystemHandler(cfg.App.Name, version).
		AddCheck("database", func(context.Context) error { return db.Ping() })
	if pinger, ok := locker.(interface{ Ping(context.Context) error }); ok {
		systemHandler.AddCheck("redis", pinger.Ping)
	}

	engine := newEngine(cfg, log, mp)
	router.NewRouter(engine, router.WithAPIVersion("v1")).
		Register(router.AccountingRoutes(accountingHandler)).
		Register(router.SystemRoutes(systemHandler)).
		Setup()
	router.RegisterProbes(engine, systemHandler)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// runMigrations applies the embedded schema on its own connection, since
// closing the migrator closes the connection it was given.
func runMigrations(cfg *config.DatabaseConfig, log *zap.Logger) error {
	sqlDB, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return err
	}
	m, err := migration.NewEmbedded(sqlDB, migrations.FS, log)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	defer func() {
		_ = m.Close()
	}()
	return m.Up()
}

// newEngine builds the gin engine with the middleware stack in order:
// request ID, recovery, access log, security headers, CORS, tracing,
// HTTP metrics and body limit.
func newEngine(cfg *config.Config, log *zap.Logger, mp *telemetry.MeterProvider) *gin.Engine {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}

	securityConfig := middleware.DefaultSecurityConfig()
	securityConfig.HSTSEnabled = cfg.App.Env == "production"

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure(securityConfig))
	engine.Use(middleware.CORS(corsConfig))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: mp,
		ServiceName:   cfg.Telemetry.ServiceName,
		Enabled:       cfg.Telemetry.MetricsEnabled,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	return engine
}

// setupTelemetry creates the trace, metric and log pipelines. Failures fall
// back to disabled providers so the service still starts without a collector.
func setupTelemetry(ctx context.Context, cfg *config.Config, log *zap.Logger) (
	*telemetry.TracerProvider, *telemetry.MeterProvider, *telemetry.LoggerProvider,
) {
	t := cfg.Telemetry

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           t.Enabled,
		CollectorEndpoint: t.CollectorEndpoint,
		SamplingRatio:     t.SamplingRatio,
		ServiceName:       t.ServiceName,
		ServiceVersion:    version,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		log.Warn("Tracing disabled", zap.Error(err))
		tp, _ = telemetry.NewTracerProvider(ctx, telemetry.Config{}, log)
	}

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           t.MetricsEnabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ExportInterval:    t.MetricsExportInterval,
		ServiceName:       t.ServiceName,
		ServiceVersion:    version,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		log.Warn("Metrics disabled", zap.Error(err))
		mp, _ = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{}, log)
	}

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           t.Enabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ServiceName:       t.ServiceName,
		ServiceVersion:    version,
		Insecure:          t.Insecure,
	}, log)
	if err != nil {
		log.Warn("Log export disabled", zap.Error(err))
		lp, _ = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{}, log)
	}

	return tp, mp, lp
}

func shutdownTelemetry(log *zap.Logger, tp *telemetry.TracerProvider, mp *telemetry.MeterProvider, lp *telemetry.LoggerProvider) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := lp.Shutdown(ctx); err != nil {
		log.Warn("Logger provider shutdown failed", zap.Error(err))
	}
	if err := mp.Shutdown(ctx); err != nil {
		log.Warn("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tp.Shutdown(ctx); err != nil {
		log.Warn("Tracer provider shutdown failed", zap.Error(err))
	}
}

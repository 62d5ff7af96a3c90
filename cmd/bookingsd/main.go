// Command bookingsd serves the booking webhook endpoints and runs the
// notification dispatch and ledger prune jobs.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bookings "github.com/goliatone/go-bookings"
	"github.com/goliatone/go-bookings/adapters/gojob"
	"github.com/goliatone/go-bookings/adapters/gologger"
	promadapter "github.com/goliatone/go-bookings/adapters/prometheus"
	"github.com/goliatone/go-bookings/adapters/zaplog"
	"github.com/goliatone/go-bookings/core"
	"github.com/goliatone/go-bookings/inbound"
	bookingmigrations "github.com/goliatone/go-bookings/migrations"
	"github.com/goliatone/go-bookings/providers"
	sqlstore "github.com/goliatone/go-bookings/store/sql"
	"github.com/goliatone/go-bookings/transport"
	"github.com/goliatone/go-bookings/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "go-bookings" }

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "bookingsd: load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := loadSettings(os.LookupEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := zaplog.NewProduction(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bookingsd: build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("bookingsd stopped", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg settings, logger *zaplog.Logger) error {
	loggers := gologger.ResolveForJob(gologger.DefaultLoggerName, zaplog.NewProvider(logger), logger)

	client, dialect, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := promadapter.NewRecorder(registry)

	sender, err := transport.NewDefaultRegistry(loggers.Logger).Build(cfg.Transport, cfg.TransportConfig)
	if err != nil {
		return err
	}
	if closer, ok := sender.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	opts := append([]core.Option{}, loggers.ServiceOptions()...)
	opts = append(opts, factory.ServiceOptions()...)
	opts = append(opts,
		bookings.WithConfigProvider(core.NewCfgxConfigProvider(core.StaticRawConfigLoader(cfg.serviceRaw))),
		bookings.WithMetricsRecorder(recorder),
		bookings.WithNotificationSender(sender),
	)
	svc, err := bookings.NewService(bookings.DefaultConfig(), opts...)
	if err != nil {
		return err
	}

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = cfg.CacheTTL
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return err
	}
	reader, err := sqlstore.NewCachedBookingReader(svc, cacheService)
	if err != nil {
		return err
	}
	facade, err := bookings.NewFacade(svc, bookings.WithBookingReader(reader))
	if err != nil {
		return err
	}

	webhookRegistry, err := providers.NewRegistry(svc.Config())
	if err != nil {
		return err
	}
	processor := webhooks.NewProcessor(webhookRegistry, reader.InvalidatingReconciler(svc))
	processor.Metrics = recorder
	processor.Logger = loggers.Logger

	router := inbound.NewRouter(inbound.Config{
		Processor:   processor,
		Reader:      facade.Reader(),
		ErrorMapper: svc.MapError,
		Logger:      loggers.Logger,
		Metrics:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Health: func(ctx context.Context) error {
			return client.DB().PingContext(ctx)
		},
	})
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go runJob(ctx, loggers.Logger, svc, cfg.DispatchInterval, func() *core.JobExecutionMessage {
		return gojob.DispatchNotificationsJob(0, uuid.NewString())
	})
	go runJob(ctx, loggers.Logger, svc, cfg.PruneInterval, func() *core.JobExecutionMessage {
		return gojob.PruneLedgerJob(uuid.NewString())
	})

	serveErr := make(chan error, 1)
	go func() {
		loggers.Logger.Info("bookingsd listening", "addr", cfg.HTTPAddr, "dialect", dialect, "transport", sender.Kind())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openDatabase(ctx context.Context, cfg settings) (*persistence.Client, string, error) {
	driverName := cfg.DBDriver
	var dialect schema.Dialect
	migrationDialect := bookingmigrations.DialectSQLite
	switch cfg.DBDriver {
	case "postgres":
		driverName = "postgres"
		dialect = pgdialect.New()
		migrationDialect = bookingmigrations.DialectPostgres
	default:
		dialect = sqlitedialect.New()
	}

	sqlDB, err := sql.Open(driverName, cfg.DBDSN)
	if err != nil {
		return nil, "", fmt.Errorf("bookingsd: open database: %w", err)
	}
	if migrationDialect == bookingmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{driver: driverName, server: cfg.DBDSN, debug: cfg.DBDebug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, "", fmt.Errorf("bookingsd: persistence client: %w", err)
	}

	_, err = bookingmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, bookingmigrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, "", err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, "", fmt.Errorf("bookingsd: migrate: %w", err)
	}
	return client, migrationDialect, nil
}

// runJob executes the job built by next every interval until ctx ends.
func runJob(ctx context.Context, logger core.Logger, executor gojob.JobExecutor, interval time.Duration, next func() *core.JobExecutionMessage) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msg := next()
			if err := executor.ExecuteJob(ctx, *msg); err != nil && ctx.Err() == nil {
				logger.Warn("bookings job failed", "job_id", msg.JobID, "error", err)
			}
		}
	}
}

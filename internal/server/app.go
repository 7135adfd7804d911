// Package server wires configuration, storage, credential services and the
// gRPC and metrics servers into one runnable application.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jonathandlab/coyn/internal/dbx"
	"github.com/jonathandlab/coyn/internal/logging"
	"github.com/jonathandlab/coyn/internal/server/auth"
	"github.com/jonathandlab/coyn/internal/server/config"
	"github.com/jonathandlab/coyn/internal/server/linking"
	"github.com/jonathandlab/coyn/internal/server/metrics"
	"github.com/jonathandlab/coyn/internal/server/repositories/repomanager"
	"github.com/jonathandlab/coyn/internal/server/services"
	"github.com/jonathandlab/coyn/internal/server/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/jonathandlab/coyn/internal/server/grpc"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	repos    repomanager.RepositoryManager
	registry *prometheus.Registry
	grpc     *gs.GRPCServer
	metrics  *http.Server
}

// NewApp validates c, opens the database and builds every component.
// Nothing listens until Run.
func NewApp(c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(c.LogBackend, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app, err := newApp(c, logger, db, repomanager.NewPostgresRepositoryManager())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func newApp(c *config.Config, logger logging.Logger, db *sql.DB, repos repomanager.RepositoryManager) (*App, error) {
	signer, err := auth.NewSigner([]byte(c.SecretKey), time.Now)
	if err != nil {
		return nil, fmt.Errorf("signer init error: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(registry)

	tx := dbx.NewSQLTransactor(db, nil)
	sessions := services.NewSessionService(tx, repos, signer, auth.NewDenylist(), c, logger, recorder)
	users := services.NewUserService(tx, repos, sessions, logger)

	var linker gs.Linker
	if c.PlaidClientID != "" {
		plaid := linking.NewPlaidClient(linking.PlaidConfig{
			BaseURL:    c.PlaidBaseURL,
			ClientID:   c.PlaidClientID,
			Secret:     c.PlaidSecret,
			ClientName: c.PlaidClientName,
		}, nil)
		linker = linking.NewService(plaid, logger)
	}

	return &App{
		config:   c,
		logger:   logger,
		db:       db,
		repos:    repos,
		registry: registry,
		grpc:     gs.NewGRPCServer(c.EndpointAddrGRPC, logger, sessions, users, linker).WithMetrics(registry),
		metrics:  metrics.NewServer(c.MetricsAddr, registry, db.PingContext),
	}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case s := <-sigs:
			app.logger.Info(ctx, "Signal received", "signal", s.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	if err := app.grpc.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server failed", "error", err)
		cancelFunc()
		return err
	}
	return nil
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	errc := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "Starting metrics server", "address", app.metrics.Addr)
		errc <- app.metrics.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		app.logger.Error(ctx, "metrics server failed", "error", err)
		cancelFunc()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.metrics.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(ctx, "metrics server shutdown failed", "error", err)
		return err
	}
	return nil
}

// Run applies migrations and serves until ctx is cancelled, a signal
// arrives or a server fails. The database is closed on return.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	defer func() {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close failed", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting app...")

	if err := app.repos.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	tr, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    app.config.OTLPEndpoint,
		ServiceName: "coyn",
		SampleRatio: app.config.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tr.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "tracer shutdown failed", "error", err)
		}
	}()
	if tr.Enabled() {
		app.logger.Info(ctx, "Exporting traces", "endpoint", app.config.OTLPEndpoint)
	}

	app.initSignalHandler(ctx, cancelFunc)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		errs[1] = app.startMetricsServer(ctx, cancelFunc)
	}()
	wg.Wait()

	app.logger.Info(ctx, "App stopped")
	return errors.Join(errs...)
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facewatch/internal/activity"
	"github.com/kozaktomas/facewatch/internal/circuit"
	"github.com/kozaktomas/facewatch/internal/citation"
	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/database/postgres"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/metrics"
	"github.com/kozaktomas/facewatch/internal/nfc"
	"github.com/kozaktomas/facewatch/internal/recognition"
	"github.com/kozaktomas/facewatch/internal/recognizer"
	"github.com/kozaktomas/facewatch/internal/registry"
	"github.com/kozaktomas/facewatch/internal/reports"
	"github.com/kozaktomas/facewatch/internal/security"
	"github.com/kozaktomas/facewatch/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long: `Start the Facewatch API server.
Migrations are applied on startup. The external recognizer is used when
RECOGNIZER_URL is set; otherwise recognition runs on the local matcher only.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// openStore connects to PostgreSQL, applies migrations and registers the
// store as the active backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*postgres.Pool, database.Store, error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	logger.Info("connecting to PostgreSQL")
	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	if _, err := pool.Migrate(ctx, logger); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	postgres.Register(pool)

	store, err := database.GetStore(ctx)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, store, nil
}

// newRegistry builds the registry service with its optional collaborators.
func newRegistry(cfg *config.Config, store database.Store, snapshot *facematch.CachedSnapshot,
	queue registry.EncodingQueue, act *activity.Service, m *metrics.Metrics, logger *slog.Logger,
) *registry.Service {
	opts := []registry.Option{
		registry.WithSnapshot(snapshot),
		registry.WithActivity(act),
		registry.WithMetrics(m),
		registry.WithLogger(logger),
	}
	if queue != nil {
		opts = append(opts, registry.WithEncodingQueue(queue))
	}
	if cfg.Matching.NeighbourIdx {
		opts = append(opts, registry.WithNeighbourIndex(facematch.NewNeighbourIndex()))
	}
	if cfg.Media.UploadsDir != "" {
		opts = append(opts, registry.WithMediaRemover(registry.FileRemover{Dir: cfg.Media.UploadsDir}))
	}
	return registry.NewService(store, cfg.Matching.Dim, cfg.Matching.Threshold, opts...)
}

// resolveServeHostPort applies the command-line overrides.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET environment variable is required")
	}
	resolveServeHostPort(cmd, cfg)

	logger := logging.New(os.Stderr, cfg.Log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	client := recognizer.NewClient(cfg.Recognizer.URL, cfg.Recognizer.Timeout)
	breaker := circuit.New("recognizer",
		circuit.WithFailureThreshold(cfg.Recognizer.FailureThreshold),
		circuit.WithCooldown(cfg.Recognizer.Cooldown),
		circuit.WithLogger(logger),
	)
	var enroller *recognition.Enroller
	if client.Configured() {
		enroller = recognition.NewEnroller(client, cfg.Recognizer.EnrollWorkers, cfg.Recognizer.Timeout, m, logger)
		logger.Info("external recognizer enabled", "url", cfg.Recognizer.URL)
	} else {
		logger.Info("external recognizer not configured, using local matching only")
	}

	act := activity.NewService(store, logger)
	snapshot := facematch.NewCachedSnapshot(store, cfg.Matching.SnapshotTTL)
	sec := security.NewService(store, act, m, logger)

	var queue registry.EncodingQueue
	if enroller != nil {
		queue = enroller
	}
	registrySvc := newRegistry(cfg, store, snapshot, queue, act, m, logger)
	if n, err := registrySvc.LoadIndex(ctx); err != nil {
		logger.Warn("failed to build neighbour index, similar lookups will query PostgreSQL", "error", err)
	} else if cfg.Matching.NeighbourIdx {
		logger.Info("neighbour index built", "identities", n)
	}

	deps := recognition.Deps{
		Identities: store,
		Matcher:    facematch.NewEngine(snapshot, cfg.Matching.Threshold),
		Security:   sec,
		History:    act,
		Breaker:    breaker,
		Metrics:    m,
		Logger:     logger,
	}
	if client.Configured() {
		deps.Recognizer = client
	}

	allocator := citation.NewAllocator(store, cfg.Citation.MaxAttempts, logger, m)
	server := web.NewServer(cfg, web.Services{
		Registry:    registrySvc,
		Recognition: recognition.NewService(deps),
		Security:    sec,
		Reports:     reports.NewService(store, allocator, act, logger),
		Activity:    act,
		NFC:         nfc.NewService(store, act, logger),
	}, reg, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting Facewatch API", "host", cfg.Web.Host, "port", cfg.Web.Port)
		errChan <- server.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("starting server: %w", err)
		}
		return nil
	case <-sigChan:
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}
	if enroller != nil {
		if err := enroller.Close(shutdownCtx); err != nil {
			logger.Warn("pending encoding registrations abandoned", "error", err)
		}
	}
	return nil
}

// main package for the syllabs-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/syllabs/internal/config"
	"github.com/book-expert/syllabs/internal/inventory"
	"github.com/book-expert/syllabs/internal/objectstore"
	"github.com/book-expert/syllabs/internal/observe"
	"github.com/book-expert/syllabs/internal/syllable"
	"github.com/book-expert/syllabs/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName           = "syllabs-service"
	serviceVersion        = "0.1.0"
	metricsPath           = "/metrics"
	metricsReadTimeout    = 5 * time.Second
	metricsShutdownPeriod = 5 * time.Second
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "syllabs-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

// serve connects to NATS, builds the syllable trie and runs the keystroke worker and the
// metrics endpoint until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name(serviceName))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	trie, err := loadTrie(ctx, cfg, natsConnection, log)
	if err != nil {
		return err
	}

	shutdownMetrics, err := observe.InitProvider(serviceName, serviceVersion)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	defer func() {
		shutdownErr := shutdownMetrics(context.Background())
		if shutdownErr != nil {
			log.Warn("Failed to shut down metrics provider: %v", shutdownErr)
		}
	}()

	keystrokeWorker, err := worker.NewNatsWorker(
		natsConnection,
		worker.Settings{
			KeystrokeSubject:   cfg.NATS.KeystrokeSubject,
			PlaybackSubject:    cfg.NATS.PlaybackSubject,
			Debounce:           cfg.DebounceThreshold(),
			SessionIdleTimeout: cfg.SessionIdleTimeout(),
		},
		trie,
		observe.DefaultMetrics(),
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create keystroke worker: %w", err)
	}

	log.System("Syllabs service initialized with %d syllables. Listening for keystrokes on subject: %s",
		trie.Len(), cfg.NATS.KeystrokeSubject)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return keystrokeWorker.Run(groupCtx)
	})

	if cfg.Metrics.ListenAddr != "" {
		group.Go(func() error {
			return serveMetrics(groupCtx, cfg.Metrics.ListenAddr, log)
		})
	}

	err = group.Wait()
	if err != nil {
		return fmt.Errorf("service stopped: %w", err)
	}

	log.System("Syllabs service stopped.")

	return nil
}

// loadTrie collects the inventory from the configured source and builds the trie.
func loadTrie(
	ctx context.Context,
	cfg *config.Config,
	natsConnection *nats.Conn,
	log *logger.Logger,
) (*syllable.Trie, error) {
	var entries []inventory.Entry

	switch cfg.InventorySource() {
	case config.SourceManifest:
		manifest, err := inventory.LoadManifest(cfg.Inventory.ManifestPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load syllable manifest: %w", err)
		}

		entries = manifest.Entries()
	default:
		jetstreamContext, err := natsConnection.JetStream()
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}

		store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to open audio object store: %w", err)
		}

		entries, err = inventory.FromObjectStore(ctx, store, cfg.AssetExtension())
		if err != nil {
			return nil, fmt.Errorf("failed to read syllable inventory: %w", err)
		}
	}

	trie, err := inventory.Build(entries, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build syllable trie: %w", err)
	}

	return trie, nil
}

// serveMetrics serves the Prometheus endpoint until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, log *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadTimeout,
	}

	errChan := make(chan error, 1)

	go func() {
		errChan <- server.ListenAndServe()
	}()

	log.Info("Serving metrics on %s%s", addr, metricsPath)

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("metrics server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownPeriod)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down metrics server: %w", err)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}

package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joshdurbin/garmin-wrapped/internal/garmin"
	"github.com/joshdurbin/garmin-wrapped/internal/logging"
	"github.com/joshdurbin/garmin-wrapped/internal/narrative"
	"github.com/joshdurbin/garmin-wrapped/internal/report"
	"github.com/joshdurbin/garmin-wrapped/internal/server"
	"github.com/joshdurbin/garmin-wrapped/internal/store"
)

// RuntimeConfig holds all runtime configuration from CLI flags
type RuntimeConfig struct {
	Port       int
	DBPath     string
	GCSBucket  string
	SessionKey string
	GeminiKey  string
	Workers    int
}

// Run is the main entry point for the server
func Run(cfg *RuntimeConfig) error {
	log := logging.Logger

	log.Info().
		Int("port", cfg.Port).
		Str("db_path", cfg.DBPath).
		Str("gcs_bucket", cfg.GCSBucket).
		Bool("ai_enabled", cfg.GeminiKey != "").
		Int("workers", cfg.Workers).
		Msg("starting garmin-wrapped")

	// Set up context for shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	sessionKey, err := resolveSessionKey(cfg.SessionKey)
	if err != nil {
		return err
	}

	dial := func(ctx context.Context, creds garmin.Credentials) (report.Fetcher, error) {
		return garmin.Login(ctx, creds)
	}

	generator := report.NewGenerator(dial, backend)
	if cfg.Workers > 0 {
		generator.Workers = cfg.Workers
	}
	narrativeSvc := narrative.NewService(cfg.GeminiKey, backend)

	srv := server.New(sessionKey, generator, narrativeSvc)
	return runHTTPServer(ctx, srv, cfg.Port)
}

// openBackend selects the blob store: GCS when a bucket is named,
// local SQLite otherwise.
func openBackend(ctx context.Context, cfg *RuntimeConfig) (store.Backend, error) {
	if cfg.GCSBucket != "" {
		backend, err := store.OpenGCS(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("opening cloud storage: %w", err)
		}
		return backend, nil
	}
	backend, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return backend, nil
}

// resolveSessionKey validates the configured key or generates an
// ephemeral one. A generated key invalidates sessions on restart.
func resolveSessionKey(configured string) ([]byte, error) {
	if configured != "" {
		if len(configured) < 32 {
			return nil, fmt.Errorf("session key must be at least 32 characters")
		}
		return []byte(configured), nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}
	logging.Logger.Warn().Msg("no session key configured, sessions will not survive restarts")
	return key, nil
}

// runHTTPServer serves the API until the context is cancelled
func runHTTPServer(ctx context.Context, handler http.Handler, port int) error {
	log := logging.Logger

	addr := fmt.Sprintf(":%d", port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", addr).
			Str("endpoint", fmt.Sprintf("http://localhost%s", addr)).
			Msg("server running")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down HTTP server")
		return httpServer.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

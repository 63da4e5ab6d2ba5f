package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"resumable/internal/config"
	"resumable/internal/storage/filestore"
	"resumable/internal/storage/index"
	"resumable/internal/storage/memstore"
	"resumable/internal/storage/s3store"
	"resumable/internal/ui"
	"resumable/pkg/tus"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

func setupLogging(cfg config.LoggingConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	handler := log.NewWithOptions(os.Stdout, log.Options{
		Level:           level,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    cfg.Caller,
	})

	slog.SetDefault(slog.New(handler))
	return nil
}

// openStore builds the data store selected by cfg. The returned closer
// releases whatever the store holds open.
func openStore(ctx context.Context, cfg *config.Config) (tus.DataStore, io.Closer, error) {
	storeCfg := cfg.StoreConfig()

	switch cfg.Store.Type {
	case "memory":
		store, err := memstore.New(storeCfg)
		return store, io.NopCloser(nil), err

	case "s3":
		opts, err := config.S3Options(cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := s3store.Connect(ctx, storeCfg, opts)
		return store, io.NopCloser(nil), err
	}

	opts, err := config.FileOptions(cfg)
	if err != nil {
		return nil, nil, err
	}

	// Ensure data directory is absolute for easier debugging.
	dataDir, err := filepath.Abs(cfg.Store.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var idx index.Index
	switch opts.Index {
	case "badger":
		path := opts.IndexPath
		if path == "" {
			path = filepath.Join(dataDir, "index")
		}
		idx, err = index.OpenBadger(path)
	default:
		path := opts.IndexPath
		if path == "" {
			path = filepath.Join(dataDir, "uploads.sqlite")
		}
		idx, err = index.OpenSQLite(ctx, path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s index: %w", opts.Index, err)
	}

	slog.Info("Using file store", "data_dir", dataDir, "index", opts.Index)

	store, err := filestore.New(storeCfg, filepath.Join(dataDir, "data"), idx)
	if err != nil {
		_ = idx.Close()
		return nil, nil, err
	}
	return store, store, nil
}

func logEvents(server *tus.Server) {
	server.Subscribe(tus.EventFileCreated, func(ev tus.Event) {
		slog.Info("Upload created", "id", ev.ID, "url", ev.URL)
	})
	server.Subscribe(tus.EventUploadComplete, func(ev tus.Event) {
		slog.Info("Upload complete", "id", ev.ID, "size", ev.Upload.Size)
	})
	server.Subscribe(tus.EventFileDeleted, func(ev tus.Event) {
		slog.Info("Upload deleted", "id", ev.ID)
	})
}

func Run(ctx context.Context) error {
	configPath := flag.String("config", "", "path to a configuration file")
	listen := flag.String("listen", "", "HTTP listen address (overrides the configuration)")
	storeType := flag.String("store", "", "data store: file, memory or s3 (overrides the configuration)")
	dataDir := flag.String("data-dir", "", "directory to store uploads (overrides the configuration)")
	logLevel := flag.String("log-level", "", "log level (overrides the configuration)")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *storeType != "" {
		cfg.Store.Type = *storeType
	}
	if *dataDir != "" {
		cfg.Store.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if *printConfig {
		return config.Dump(os.Stdout, cfg)
	}

	if err := setupLogging(cfg.Logging); err != nil {
		return err
	}

	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open data store: %w", err)
	}

	defer closer.Close()

	lister, _ := store.(ui.Lister)
	collection := cfg.Protocol.BasePath + cfg.Protocol.Path
	home := ui.Home(collection, cfg.Protocol.MaxChunkSize, lister)

	opts := append(cfg.ServerOptions(), tus.WithRoute("/", home))
	if cfg.Protocol.BasePath != "" {
		opts = append(opts, tus.WithRoute(cfg.Protocol.BasePath, home))
	}

	server, err := tus.NewServer(store, opts...)
	if err != nil {
		return fmt.Errorf("failed to create tus server: %w", err)
	}

	logEvents(server)

	var middleware []func(http.Handler) http.Handler
	if mw := cfg.Server.Auth.Middleware(); mw != nil {
		slog.Info("Authentication enabled", "users", len(cfg.Server.Auth.Users), "tokens", len(cfg.Server.Auth.Tokens))
		middleware = append(middleware, mw)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.Handler(middleware...),
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	if cfg.Server.TLSCert != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		slog.Info("Shutting down", "timeout", cfg.Server.ShutdownTimeout)
		return httpServer.Shutdown(shutdownCtx)
	})

	eg.Go(func() error {
		var err error
		if cfg.Server.TLSCert != "" {
			slog.Info("Starting HTTPS server", "listen", cfg.Server.Listen, "path", collection, "store", cfg.Store.Type)
			err = httpServer.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			slog.Info("Starting HTTP server", "listen", cfg.Server.Listen, "path", collection, "store", cfg.Store.Type)
			err = httpServer.ListenAndServe()
		}

		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Run(ctx); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/otpgate/otpgate/internal/adapter/driven/objstore"
	sqliteadapter "github.com/otpgate/otpgate/internal/adapter/driven/sqlite"
	"github.com/otpgate/otpgate/internal/adapter/driven/whatsapp"
	httphandler "github.com/otpgate/otpgate/internal/adapter/driving/http"
	webhandler "github.com/otpgate/otpgate/internal/adapter/driving/web"
	"github.com/otpgate/otpgate/internal/application"
	"github.com/otpgate/otpgate/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"session_id", cfg.SessionID,
		"credential_dir", cfg.CredentialDir,
		"remote_prefix", cfg.RemotePrefix,
		"heartbeat_interval", cfg.HeartbeatInterval,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open status database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	statusStore := sqliteadapter.NewStatusRepo(db)
	remote, err := objstore.New(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3Secure, slog.Default())
	if err != nil {
		return err
	}
	transport := whatsapp.NewTransport(slog.Default())

	// 6. Wire application services.
	publisher := application.NewStatusPublisher(statusStore, cfg.SessionID, cfg.HeartbeatInterval, slog.Default())
	bridge := application.NewCredentialBridge(remote, cfg.CredentialDir, cfg.RemotePrefix, slog.Default())
	controller := application.NewSessionController(transport, bridge, publisher, slog.Default())

	// 7. Start the session. A failed start degrades to a disconnected
	// status; a later restart command can recover without a new process.
	if err := controller.Start(ctx); err != nil {
		slog.Error("session start failed", "error", err)
	}
	defer controller.Shutdown(context.Background())

	// 8. Start the heartbeat loop.
	go publisher.Run(ctx)

	// 9. Register routes and middleware.
	apiHandler := httphandler.NewHandler(publisher, controller, slog.Default())
	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, apiHandler)
	webhandler.RegisterRoutes(mux, slog.Default())
	handler := httphandler.ApplyMiddleware(mux, cfg.APIToken, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("otpgate started", "listen_addr", cfg.ListenAddr, "session_id", cfg.SessionID)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 11. Graceful shutdown with 10s timeout for HTTP server drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

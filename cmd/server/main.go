package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"vahtook/internal/auth"
	"vahtook/internal/config"
	"vahtook/internal/db"
	"vahtook/internal/grpcserver"
	"vahtook/internal/httpapi"
	"vahtook/internal/hub"
	"vahtook/internal/logger"
	"vahtook/internal/metrics"
	"vahtook/internal/orders"
	"vahtook/repository"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		logger.New("vahtook-api").Error("", "server_exit", "server failed", err, nil)
		os.Exit(1)
	}
}

// loadConfig requires JWT_SECRET unless dev is set.
func loadConfig(dev bool) (*config.Config, error) {
	if dev {
		return config.LoadWithDefaults()
	}
	return config.Load()
}

// run serves until ctx is done or a listener fails, then shuts everything down.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	dev := fs.Bool("dev", false, "development mode: use a built-in JWT secret when JWT_SECRET is unset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Load configuration
	cfg, err := loadConfig(*dev)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log.Service)
	if *dev {
		log.Warn("", "config_loaded", "development mode, do not use in production", nil)
	}
	log.Info("", "config_loaded", "configuration loaded", map[string]any{"config": cfg.String()})

	// Open DB
	d, err := db.Open(db.Dialect(cfg.Database.Driver), cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Error("", "db_close", "close db", err, nil)
		}
	}()

	orderRepo := repository.NewOrderRepository(d)
	adminRepo := repository.NewAdminRepository(d)
	authn := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, adminRepo)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	h := hub.New(authn, orderRepo,
		hub.WithLogger(log),
		hub.WithMetrics(m),
		hub.WithInterval(cfg.SSE.Interval),
		hub.WithRecentLimit(cfg.SSE.RecentLimit),
	)
	svc := orders.NewService(orderRepo, h, orders.WithLogger(log), orders.WithMetrics(m))

	api := httpapi.New(httpapi.Deps{
		Orders:      svc,
		Hub:         h,
		Auth:        authn,
		Admins:      adminRepo,
		Logger:      log,
		Metrics:     m,
		Gatherer:    reg,
		CORSOrigins: cfg.HTTP.CORSOrigins,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tickCtx, stopTicks := context.WithCancel(context.Background())
	defer stopTicks()
	go h.Run(tickCtx)

	// Start gRPC
	var ops *grpcserver.Server
	if cfg.GRPC.Address != "" {
		ops, err = grpcserver.Start(cfg.GRPC.Address, authn, log)
		if err != nil {
			return fmt.Errorf("start grpc: %w", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("", "http_start", "HTTP server listening", map[string]any{"address": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for a signal or a listener failure
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("", "shutdown_start", "shutting down", nil)
	case runErr = <-serveErr:
		log.Error("", "http_serve", "HTTP server stopped", runErr, nil)
		runErr = fmt.Errorf("serve http: %w", runErr)
	}

	if ops != nil {
		ops.MarkNotServing()
	}
	stopTicks()
	h.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("", "http_shutdown", "shutdown error", err, nil)
	}
	if ops != nil {
		if err := ops.Shutdown(shutdownCtx); err != nil {
			log.Error("", "grpc_shutdown", "shutdown error", err, nil)
		}
	}
	log.Info("", "shutdown_done", "server stopped", nil)
	return runErr
}

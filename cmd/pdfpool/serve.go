package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/use-agent/pdfpool/api"
	"github.com/use-agent/pdfpool/config"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP render API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	// ── 1. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log, os.Stdout)
	slog.Info("pdfpool starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"minPoolSize", cfg.Pool.MinSize,
		"maxPoolSize", cfg.Pool.MaxSize,
	)

	// ── 2. Metrics registry ─────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// ── 3. Initialise pool (launches browsers) ──────────────────────
	p := newPool(cfg, reg)
	initCtx, initCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Pool.MinSize+1)*cfg.Browser.LaunchTimeout)
	err := p.Initialize(initCtx)
	initCancel()
	if err != nil {
		return fmt.Errorf("initialise pool: %w", err)
	}

	// ── 4. Setup router ─────────────────────────────────────────────
	routerCtx, stopRouter := context.WithCancel(context.Background())
	defer stopRouter()
	router := api.NewRouter(routerCtx, p, cfg, reg, time.Now())

	// ── 5. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		if err != nil {
			slog.Error("HTTP server error", "error", err)
			runErr = err
		}
	}

	gracefulShutdown(srv, p, cfg.Server.ShutdownTimeout)

	slog.Info("pdfpool stopped")
	return runErr
}

// shutdowner is satisfied by *http.Server and *pool.Pool.
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// gracefulShutdown drains HTTP first so no new renders reach a closing
// pool, then shuts the pool down. Each stage gets its own timeout, so a
// slow drain cannot leave the pool without time to close its browsers.
func gracefulShutdown(srv, p shutdowner, timeout time.Duration) {
	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), timeout)
	defer cancelHTTP()
	if err := srv.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	poolCtx, cancelPool := context.WithTimeout(context.Background(), timeout)
	defer cancelPool()
	if err := p.Shutdown(poolCtx); err != nil {
		slog.Error("pool shutdown incomplete", "error", err)
	}
}

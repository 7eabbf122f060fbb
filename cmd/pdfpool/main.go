package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/use-agent/pdfpool/api/handler"
	"github.com/use-agent/pdfpool/browser"
	"github.com/use-agent/pdfpool/config"
	"github.com/use-agent/pdfpool/metrics"
	"github.com/use-agent/pdfpool/pool"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "pdfpool",
	Short:         "HTML to PDF rendering service backed by a pool of headless browsers",
	Version:       handler.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"path to a config file (yaml, json or toml); PDFPOOL_* env vars override it")
	rootCmd.AddCommand(newServeCmd(), newRenderCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newPool wires the browser launcher, metrics and logger into a pool.
// The pool is not initialized.
func newPool(cfg *config.Config, reg prometheus.Registerer) *pool.Pool {
	var m *metrics.Metrics
	if cfg.Metrics.Enabled && reg != nil {
		m = metrics.New(reg)
	}
	launcher := browser.NewLauncher(cfg.Browser, slog.Default())
	return pool.New(cfg.Pool, launcher.Launch,
		pool.WithLogger(slog.Default()),
		pool.WithMetrics(m),
		pool.WithLaunchTimeout(cfg.Browser.LaunchTimeout),
	)
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(h))
}

package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/pdfpool/config"
	"github.com/use-agent/pdfpool/pool"
)

const connectedCheckTimeout = 2 * time.Second

// Launcher starts headless Chromium processes for the render pool.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *slog.Logger
}

// NewLauncher creates a Launcher. A nil logger means slog.Default().
func NewLauncher(cfg config.BrowserConfig, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{cfg: cfg, logger: logger.With("component", "browser")}
}

// Launch starts one Chromium process and connects to it over CDP.
// ctx bounds the startup; the returned process outlives it.
func (l *Launcher) Launch(ctx context.Context) (pool.Process, error) {
	ln := l.newLauncher(ctx)

	controlURL, err := ln.Launch()
	if err != nil {
		ln.Kill()
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		ln.Kill()
		ln.Cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = b.Close()
		ln.Kill()
		ln.Cleanup()
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	p := &Process{
		browser:  b,
		launcher: ln,
		pid:      ln.PID(),
		logger:   l.logger,
	}
	l.logger.Debug("browser launched", "pid", p.pid, "controlURL", controlURL)
	return p, nil
}

func (l *Launcher) newLauncher(ctx context.Context) *launcher.Launcher {
	ln := launcher.New().
		Context(ctx).
		Headless(l.cfg.Headless).
		NoSandbox(l.cfg.NoSandbox)

	if l.cfg.Bin != "" {
		ln = ln.Bin(l.cfg.Bin)
	}

	// ── Print-oriented flags ─────────────────────────────────────────
	ln.Set(flags.Flag("disable-dev-shm-usage"))
	ln.Set(flags.Flag("disable-gpu"))
	ln.Set(flags.Flag("disable-extensions"))
	ln.Set(flags.Flag("disable-background-networking"))
	ln.Set(flags.Flag("disable-component-update"))
	ln.Set(flags.Flag("disable-default-apps"))
	ln.Set(flags.Flag("disable-sync"))
	ln.Set(flags.Flag("no-first-run"))
	ln.Set(flags.Flag("hide-scrollbars"))
	ln.Set(flags.Flag("mute-audio"))
	ln.Set(flags.Flag("font-render-hinting"), "none")
	return ln
}

// Process is one Chromium instance driven through rod.
type Process struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	pid      int
	logger   *slog.Logger
}

// NewPage opens a blank tab.
func (p *Process) NewPage(ctx context.Context) (pool.Page, error) {
	page, err := p.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("browser: open page: %w", err)
	}
	// Drop the creation context so Close works after ctx expires.
	return &Page{page: page.Context(context.Background())}, nil
}

// Connected asks the browser for its version over CDP.
func (p *Process) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), connectedCheckTimeout)
	defer cancel()
	_, err := proto.BrowserGetVersion{}.Call(p.browser.Context(ctx))
	return err == nil
}

// PID returns the Chromium process id.
func (p *Process) PID() int { return p.pid }

// Close disconnects, kills the process and removes its profile directory.
func (p *Process) Close() error {
	err := p.browser.Close()
	p.launcher.Kill()
	p.launcher.Cleanup()
	if err != nil {
		return fmt.Errorf("browser: close pid %d: %w", p.pid, err)
	}
	p.logger.Debug("browser closed", "pid", p.pid)
	return nil
}

package pool

import (
	"context"

	"github.com/use-agent/pdfpool/models"
)

// Process is one running headless browser owned by exactly one Worker.
type Process interface {
	// NewPage opens an ephemeral page. The page must be closed by the caller.
	NewPage(ctx context.Context) (Page, error)

	// Connected reports whether the control connection is still alive.
	Connected() bool

	// PID returns the OS process id, or 0 if unknown.
	PID() int

	// Close terminates the process. It may be called more than once.
	Close() error
}

// Page is a single browser tab used for one render attempt or probe.
type Page interface {
	// Load replaces the page content with html. When waitNetwork is set it
	// waits for network activity to settle, otherwise only for the DOM to
	// stop changing. Both waits are bounded by ctx.
	Load(ctx context.Context, html string, waitNetwork bool) error

	// PrintPDF prints the loaded document with the request's layout options.
	PrintPDF(ctx context.Context, req *models.RenderRequest) ([]byte, error)

	Close() error
}

// LaunchFunc starts a new browser process. ctx bounds the startup.
type LaunchFunc func(ctx context.Context) (Process, error)

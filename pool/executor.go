package pool

import (
	"context"
	"errors"
	"time"

	"github.com/use-agent/pdfpool/document"
	"github.com/use-agent/pdfpool/models"
)

// execute runs one render attempt on w. It never retries; the page is
// closed on every path and close failures are only logged.
//
//  1. Timeout guard   – per-attempt deadline
//  2. Open page       – ephemeral tab on the worker's browser
//  3. DEFER: close    – best-effort, logged
//  4. Load            – set content, wait for network idle or DOM stable
//  5. Print           – PDF with the request's layout options
func (p *Pool) execute(ctx context.Context, w *Worker, req *models.RenderRequest, waitNetwork bool) ([]byte, error) {
	// ── 1. Timeout guard ──────────────────────────────────────────────
	ctx, cancel := context.WithTimeout(ctx, req.TimeoutOr(p.cfg.DefaultTimeout))
	defer cancel()

	w.inflight.Add(1)
	defer w.inflight.Add(-1)
	// Counted once the attempt has finished, whatever its outcome.
	defer w.usage.Add(1)

	// ── 2. Open page ──────────────────────────────────────────────────
	page, err := w.proc.NewPage(ctx)
	if err != nil {
		return nil, categorizeError(err, "failed to open page")
	}

	// ── 3. DEFER: close page ──────────────────────────────────────────
	defer func() {
		if cerr := page.Close(); cerr != nil {
			p.logger.Warn("failed to close page",
				"event", "page_close_failed",
				"worker_id", w.ID(),
				"error", cerr,
			)
			p.metrics.CloseFailed()
		}
	}()

	// ── 4. Load content ───────────────────────────────────────────────
	if err := page.Load(ctx, req.HTML, waitNetwork); err != nil {
		return nil, categorizeError(err, "failed to load content")
	}

	// ── 5. Print ──────────────────────────────────────────────────────
	pdf, err := page.PrintPDF(ctx, req)
	if err != nil {
		return nil, categorizeError(err, "failed to print PDF")
	}

	w.lastUsed.Store(time.Now().UnixNano())
	return pdf, nil
}

// categorizeError wraps raw errors into typed RenderErrors.
func categorizeError(err error, msg string) *models.RenderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewRenderError(models.ErrCodeTimeout, msg+": timed out", err)
	}
	return models.NewRenderError(models.ErrCodeBrowserCrash, msg, err)
}

// needsNetworkWait reports whether html references anything the browser
// must fetch. Unparseable documents are assumed to need the wait.
func needsNetworkWait(html string) bool {
	report, err := document.Inspect(html)
	if err != nil {
		return true
	}
	return report.HasExternal()
}

package browser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/pdfpool/models"
)

const (
	requestIdleWindow = 500 * time.Millisecond
	domStableWindow   = 300 * time.Millisecond
	domStableDiff     = 0.1
)

// Page is one Chromium tab.
type Page struct {
	page *rod.Page
}

// Load replaces the document with html and waits for it to settle.
//
//  1. Idle listener setup  – registered BEFORE content so no request is missed
//  2. Set content          – Page.setDocumentContent
//  3. Wait                 – network idle, or DOM stable for self-contained docs
func (p *Page) Load(ctx context.Context, html string, waitNetwork bool) error {
	pg := p.page.Context(ctx)

	// ── 1. Idle listener setup ────────────────────────────────────────
	var waitIdle func()
	if waitNetwork {
		waitIdle = pg.WaitRequestIdle(requestIdleWindow, nil, nil, nil)
	}

	// ── 2. Set content ────────────────────────────────────────────────
	if err := pg.SetDocumentContent(html); err != nil {
		return fmt.Errorf("browser: set content: %w", err)
	}

	// ── 3. Wait ───────────────────────────────────────────────────────
	if waitIdle != nil {
		waitIdle()
	} else if err := pg.WaitDOMStable(domStableWindow, domStableDiff); err != nil {
		return fmt.Errorf("browser: wait dom stable: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("browser: wait for load: %w", err)
	}
	return nil
}

// PrintPDF prints the current document.
func (p *Page) PrintPDF(ctx context.Context, req *models.RenderRequest) ([]byte, error) {
	opts, err := PrintOptions(req)
	if err != nil {
		return nil, err
	}

	r, err := p.page.Context(ctx).PDF(opts)
	if err != nil {
		return nil, fmt.Errorf("browser: print: %w", err)
	}
	defer r.Close()

	pdf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("browser: read pdf stream: %w", err)
	}
	return pdf, nil
}

// Close closes the tab.
func (p *Page) Close() error {
	if err := p.page.Close(); err != nil {
		return fmt.Errorf("browser: close page: %w", err)
	}
	return nil
}

// PrintOptions converts a render request into CDP print parameters. The
// paper keeps its portrait dimensions; Chromium rotates it for landscape.
func PrintOptions(req *models.RenderRequest) (*proto.PagePrintToPDF, error) {
	r := *req
	r.Defaults()

	size, ok := models.LookupPaperSize(r.Format)
	if !ok {
		return nil, models.NewRenderError(models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown format %q", r.Format), nil)
	}
	margin, err := r.Margin.Inches()
	if err != nil {
		return nil, models.NewRenderError(models.ErrCodeInvalidInput, err.Error(), err)
	}

	opts := &proto.PagePrintToPDF{
		Landscape:           r.Landscape(),
		DisplayHeaderFooter: r.DisplayHeaderFooter,
		PrintBackground:     *r.PrintBackground,
		Scale:               ptr(r.Scale),
		PaperWidth:          ptr(size.Width),
		PaperHeight:         ptr(size.Height),
		MarginTop:           ptr(margin.Top),
		MarginRight:         ptr(margin.Right),
		MarginBottom:        ptr(margin.Bottom),
		MarginLeft:          ptr(margin.Left),
	}
	if r.DisplayHeaderFooter {
		opts.HeaderTemplate = r.HeaderTemplate
		opts.FooterTemplate = r.FooterTemplate
	}
	return opts, nil
}

func ptr(v float64) *float64 { return &v }

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/pdfpool/config"
	"github.com/use-agent/pdfpool/models"
)

type renderFlags struct {
	in              string
	out             string
	format          string
	landscape       bool
	printBackground bool
	scale           float64
	margin          string
	timeout         time.Duration
}

func newRenderCmd() *cobra.Command {
	var f renderFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one HTML file to PDF with a single-worker pool",
		Example: `  pdfpool render --in invoice.html --out invoice.pdf
  cat page.html | pdfpool render --in - --out - --format letter --landscape > page.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return renderOnce(cmd.Context(), cfg, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.in, "in", "i", "", "input HTML file, or - for stdin")
	fl.StringVarP(&f.out, "out", "o", "", "output PDF file, or - for stdout")
	fl.StringVar(&f.format, "format", "A4", "paper format (A0-A6, Letter, Legal, Tabloid, Ledger)")
	fl.BoolVar(&f.landscape, "landscape", false, "landscape orientation")
	fl.BoolVar(&f.printBackground, "print-background", true, "print CSS backgrounds")
	fl.Float64Var(&f.scale, "scale", 1, "rendering scale (0.1-2)")
	fl.StringVar(&f.margin, "margin", "", "margin for every side, e.g. 10mm or 0.5in")
	fl.DurationVar(&f.timeout, "timeout", 0, "per-attempt timeout (default from config)")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func renderOnce(ctx context.Context, cfg *config.Config, f renderFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// Logs go to stderr so the PDF can be written to stdout.
	initLogger(cfg.Log, os.Stderr)

	html, err := readInput(f.in)
	if err != nil {
		return err
	}

	req := buildRequest(string(html), f)

	cfg.Pool.MinSize, cfg.Pool.MaxSize = 1, 1
	p := newPool(cfg, nil)
	if err := p.Initialize(ctx); err != nil {
		return fmt.Errorf("initialise pool: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := p.Shutdown(shutdownCtx); err != nil {
			slog.Warn("pool shutdown incomplete", "error", err)
		}
	}()

	res := p.Render(ctx, req)
	if !res.Success {
		return fmt.Errorf("render failed after %d retries: [%s] %s", res.RetryCount, res.Code, res.Error)
	}

	if err := writeOutput(f.out, res.PDF); err != nil {
		return err
	}
	slog.Info("rendered",
		"out", f.out,
		"bytes", len(res.PDF),
		"generation_ms", res.GenerationTimeMs,
		"retries", res.RetryCount,
	)
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return b, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return b, nil
}

func writeOutput(path string, pdf []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(pdf)
		return err
	}
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func buildRequest(html string, f renderFlags) *models.RenderRequest {
	req := &models.RenderRequest{
		HTML:            html,
		Format:          f.format,
		Orientation:     "portrait",
		PrintBackground: &f.printBackground,
		Scale:           f.scale,
		Timeout:         int(f.timeout.Milliseconds()),
		Margin: models.Margin{
			Top:    models.Length(f.margin),
			Right:  models.Length(f.margin),
			Bottom: models.Length(f.margin),
			Left:   models.Length(f.margin),
		},
	}
	if f.landscape {
		req.Orientation = "landscape"
	}
	return req
}

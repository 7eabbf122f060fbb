package models

import (
	"fmt"
	"strings"
	"time"
)

// Scale bounds accepted by the print pipeline.
const (
	MinScale = 0.1
	MaxScale = 2.0
)

// RenderRequest is the payload for POST /api/v1/render and the input of
// pool.Render. It is treated as immutable once handed to the pool.
type RenderRequest struct {
	// HTML is the complete document to render. Required.
	HTML string `json:"html" binding:"required"`

	// Format is the paper format keyword (A4, Letter, Legal, ...).
	// Default: "A4".
	Format string `json:"format,omitempty"`

	// Orientation is "portrait" (default) or "landscape".
	Orientation string `json:"orientation,omitempty" binding:"omitempty,oneof=portrait landscape"`

	// Margin sets the page margins. Numbers are CSS pixels; strings may
	// carry px, in, cm or mm units.
	Margin Margin `json:"margin"`

	// DisplayHeaderFooter turns on HeaderTemplate and FooterTemplate.
	DisplayHeaderFooter bool   `json:"display_header_footer,omitempty"`
	HeaderTemplate      string `json:"header_template,omitempty"`
	FooterTemplate      string `json:"footer_template,omitempty"`

	// PrintBackground prints CSS backgrounds. Default: true.
	PrintBackground *bool `json:"print_background,omitempty"`

	// Scale is the rendering scale, 0.1 to 2. Default: 1.
	Scale float64 `json:"scale,omitempty"`

	// Timeout overrides the pool's per-attempt timeout, in milliseconds.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=0"`

	// MaxAge lets the API answer from its result cache when an identical
	// render is younger than this many milliseconds. 0 disables the lookup.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *RenderRequest) Defaults() {
	if r.Format == "" {
		r.Format = "A4"
	}
	if r.Orientation == "" {
		r.Orientation = "portrait"
	}
	if r.PrintBackground == nil {
		t := true
		r.PrintBackground = &t
	}
	if r.Scale == 0 {
		r.Scale = 1
	}
}

// Validate reports the first problem that would make the request unrenderable.
func (r *RenderRequest) Validate() error {
	if strings.TrimSpace(r.HTML) == "" {
		return NewRenderError(ErrCodeInvalidInput, "html is required", nil)
	}
	if _, ok := LookupPaperSize(r.Format); !ok {
		return NewRenderError(ErrCodeInvalidInput, fmt.Sprintf("unknown format %q", r.Format), nil)
	}
	switch r.Orientation {
	case "", "portrait", "landscape":
	default:
		return NewRenderError(ErrCodeInvalidInput, fmt.Sprintf("unknown orientation %q", r.Orientation), nil)
	}
	if r.Scale != 0 && (r.Scale < MinScale || r.Scale > MaxScale) {
		return NewRenderError(ErrCodeInvalidInput,
			fmt.Sprintf("scale must be between %.1f and %.1f", MinScale, MaxScale), nil)
	}
	if r.Timeout < 0 {
		return NewRenderError(ErrCodeInvalidInput, "timeout must not be negative", nil)
	}
	if r.MaxAge < 0 {
		return NewRenderError(ErrCodeInvalidInput, "max_age must not be negative", nil)
	}
	if _, err := r.Margin.Inches(); err != nil {
		return NewRenderError(ErrCodeInvalidInput, err.Error(), err)
	}
	return nil
}

// Landscape reports whether the request asks for landscape output.
func (r *RenderRequest) Landscape() bool {
	return r.Orientation == "landscape"
}

// TimeoutOr returns the per-request timeout, or def when none is set.
func (r *RenderRequest) TimeoutOr(def time.Duration) time.Duration {
	if r.Timeout > 0 {
		return time.Duration(r.Timeout) * time.Millisecond
	}
	return def
}

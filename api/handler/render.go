package handler

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pdfpool/cache"
	"github.com/use-agent/pdfpool/document"
	"github.com/use-agent/pdfpool/models"
)

// Renderer is the part of the pool the HTTP layer depends on.
type Renderer interface {
	Render(ctx context.Context, req *models.RenderRequest) *models.RenderResult
	Stats() models.PoolStats
}

// Render returns a handler for POST /api/v1/render.
//
// Flow:
//  1. Parse & bind the JSON request.
//  2. Cache lookup when max_age > 0 and a cache is configured.
//  3. Renderer.Render → success or failure result (never an error).
//  4. Failure → JSON error with the mapped status code.
//  5. Success → raw application/pdf, or base64 JSON with ?response=json.
//
// cc may be nil.
func Render(r Renderer, cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.RenderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.RenderResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		var key string
		if cc != nil {
			key = cache.Key(&req)
			if pdf, ok := cc.Get(key, req.MaxAge); ok {
				c.Header("X-Cache", "hit")
				writePDF(c, &req, models.NewSuccess(pdf, 0, 0))
				return
			}
		}

		// ── 3. Render ───────────────────────────────────────────────
		res := r.Render(c.Request.Context(), &req)

		// ── 4. Failure ──────────────────────────────────────────────
		if !res.Success {
			c.JSON(mapCodeToStatus(res.Code), models.RenderResponse{
				Success:          false,
				GenerationTimeMs: res.GenerationTimeMs,
				RetryCount:       res.RetryCount,
				Error: &models.ErrorDetail{
					Code:    res.Code,
					Message: res.Error,
				},
			})
			return
		}

		// ── 5. Success ──────────────────────────────────────────────
		if cc != nil {
			cc.Set(key, res.PDF)
			c.Header("X-Cache", "miss")
		}
		writePDF(c, &req, res)
	}
}

func writePDF(c *gin.Context, req *models.RenderRequest, res *models.RenderResult) {
	if c.Query("response") == "json" {
		c.JSON(http.StatusOK, models.RenderResponse{
			Success:          true,
			PDFBase64:        base64.StdEncoding.EncodeToString(res.PDF),
			GenerationTimeMs: res.GenerationTimeMs,
			RetryCount:       res.RetryCount,
		})
		return
	}

	c.Header("X-Generation-Time-Ms", strconv.FormatInt(res.GenerationTimeMs, 10))
	c.Header("X-Retry-Count", strconv.Itoa(res.RetryCount))
	c.Header("Content-Disposition",
		fmt.Sprintf(`inline; filename="%s"`, document.FileName(document.Title(req.HTML))))
	c.Data(http.StatusOK, "application/pdf", res.PDF)
}

// mapCodeToStatus translates result codes to HTTP status codes.
func mapCodeToStatus(code string) int {
	switch code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeNoHealthyWorkers, models.ErrCodePoolShutDown:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeGenerationFailed, models.ErrCodeBrowserCrash:
		return http.StatusBadGateway // 502
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}

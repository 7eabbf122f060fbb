package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/pdfpool/config"
	"github.com/use-agent/pdfpool/models"
)

func init() { gin.SetMode(gin.TestMode) }

func newAuthEngine(keys []string, seen *Caller) *gin.Engine {
	e := gin.New()
	e.Use(Auth(keys))
	e.GET("/", func(c *gin.Context) {
		if caller, ok := CallerFrom(c.Request.Context()); ok && seen != nil {
			*seen = caller
		}
		c.Status(http.StatusNoContent)
	})
	return e
}

func serve(e *gin.Engine, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAuth_AcceptsBothHeaderStyles(t *testing.T) {
	var caller Caller
	e := newAuthEngine([]string{"alpha", "beta"}, &caller)

	assert.Equal(t, http.StatusNoContent, serve(e, "X-API-Key", "beta").Code)
	first := caller.Fingerprint
	assert.Len(t, first, 16)

	assert.Equal(t, http.StatusNoContent, serve(e, "Authorization", "Bearer beta").Code)
	assert.Equal(t, first, caller.Fingerprint, "same key, same fingerprint")

	assert.Equal(t, http.StatusNoContent, serve(e, "X-API-Key", "alpha").Code)
	assert.NotEqual(t, first, caller.Fingerprint)
}

func TestAuth_Rejects(t *testing.T) {
	e := newAuthEngine([]string{"alpha"}, nil)

	cases := map[string][2]string{
		"missing":      {"", ""},
		"wrong key":    {"X-API-Key", "alph"},
		"longer key":   {"X-API-Key", "alphabet"},
		"basic scheme": {"Authorization", "Basic alpha"},
		"empty bearer": {"Authorization", "Bearer "},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(e, h[0], h[1])
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			var resp models.RenderResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, models.ErrCodeUnauthorized, resp.Error.Code)
		})
	}
}

func TestAuth_NoKeysIsOpen(t *testing.T) {
	e := newAuthEngine([]string{""}, nil)
	assert.Equal(t, http.StatusNoContent, serve(e, "", "").Code)
}

func TestCallerFrom_Empty(t *testing.T) {
	_, ok := CallerFrom(context.Background())
	assert.False(t, ok)
}

func TestRateLimit_BucketsPerKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	e := gin.New()
	e.Use(Auth([]string{"alpha", "beta"}))
	e.Use(RateLimit(ctx, config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}))
	e.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(e, "X-API-Key", "alpha").Code)
	limited := serve(e, "X-API-Key", "alpha")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Contains(t, limited.Body.String(), models.ErrCodeRateLimited)

	assert.Equal(t, http.StatusNoContent, serve(e, "Authorization", "Bearer beta").Code,
		"other keys keep their own bucket")
}

package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/pdfpool/models"
)

type callerKey struct{}

// Caller identifies an authenticated client. Fingerprint is a short hash
// of the API key, safe to log and to use as a rate-limit bucket.
type Caller struct {
	Fingerprint string
}

// CallerFrom returns the caller stored by Auth, if any.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// Auth returns API-key authentication middleware for the render API.
//
// Accepted headers:
//
//	X-API-Key: <key>
//	Authorization: Bearer <key>
//
// Keys are compared as SHA-256 digests in constant time. If apiKeys has no
// non-empty entry the middleware lets every request through.
func Auth(apiKeys []string) gin.HandlerFunc {
	digests := make([][sha256.Size]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		key := extractAPIKey(c)
		if key == "" {
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized,
				"missing API key: provide X-API-Key header or Authorization: Bearer <key>")
			return
		}

		sum := sha256.Sum256([]byte(key))
		if !matchDigest(digests, sum) {
			abort(c, http.StatusUnauthorized, models.ErrCodeUnauthorized, "invalid API key")
			return
		}

		caller := Caller{Fingerprint: hex.EncodeToString(sum[:8])}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), callerKey{}, caller))
		c.Next()
	}
}

// matchDigest checks every configured digest so timing does not reveal
// which key, if any, matched.
func matchDigest(digests [][sha256.Size]byte, sum [sha256.Size]byte) bool {
	found := 0
	for i := range digests {
		found |= subtle.ConstantTimeCompare(digests[i][:], sum[:])
	}
	return found == 1
}

func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/GoPolymarket/bulkgate/internal/config"
	"github.com/GoPolymarket/bulkgate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const (
	HeaderGatewayKey = "X-Gateway-Key"
	// ContextClientKey holds a stable, non-secret id of the caller.
	ContextClientKey = "client"

	anonymousClient = "anonymous"
)

// AuthMiddleware checks X-Gateway-Key against the configured keys. Without
// require_api_key, requests with no key pass as the anonymous client.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	keys := make([][]byte, 0, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderGatewayKey)
		if apiKey == "" {
			if !cfg.Auth.RequireAPIKey {
				c.Set(ContextClientKey, anonymousClient)
				c.Next()
				return
			}
			c.Error(apperrors.New(apperrors.ErrAuthFailed, "missing API key", nil))
			c.Abort()
			return
		}

		if !knownKey(keys, apiKey) {
			c.Error(apperrors.New(apperrors.ErrAuthFailed, "invalid API key", nil))
			c.Abort()
			return
		}

		c.Set(ContextClientKey, clientID(apiKey))
		c.Next()
	}
}

func knownKey(keys [][]byte, candidate string) bool {
	ok := 0
	for _, k := range keys {
		ok |= subtle.ConstantTimeCompare(k, []byte(candidate))
	}
	return ok == 1
}

func clientID(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return "key:" + hex.EncodeToString(sum[:6])
}

// ClientFromContext returns the caller id set by AuthMiddleware.
func ClientFromContext(c *gin.Context) string {
	if v, ok := c.Get(ContextClientKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return anonymousClient
}

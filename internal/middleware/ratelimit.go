package middleware

import (
	"sync"

	"github.com/GoPolymarket/bulkgate/internal/config"
	"github.com/GoPolymarket/bulkgate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ClientLimiters hands out one token bucket per client id.
type ClientLimiters struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func NewClientLimiters(rps float64, burst int) *ClientLimiters {
	if burst <= 0 {
		burst = 1
	}
	return &ClientLimiters{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *ClientLimiters) Get(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[client]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[client] = limiter
	}
	return limiter
}

// RateLimitMiddleware must run after AuthMiddleware. A non-positive rps
// disables limiting.
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if cfg.RateLimit.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiters := NewClientLimiters(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	return func(c *gin.Context) {
		if !limiters.Get(ClientFromContext(c)).Allow() {
			c.Header("Retry-After", "1")
			c.Error(apperrors.New(apperrors.ErrRateLimited, "rate limit exceeded", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verdantx/carbon-exchange/internal/session"
)

const accountKey = "account"

// Account resolves the caller identity for a request: a session id when one
// was opened, otherwise the raw X-Account-Address header. The identifier is
// trusted as given; no authentication happens here.
func Account(sessions *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.GetHeader("X-Session-ID"); id != "" && sessions != nil {
			s, err := sessions.Get(c.Request.Context(), id)
			if err == nil && s != nil {
				c.Set(accountKey, s.Account)
				c.Next()
				return
			}
		}
		if addr := c.GetHeader("X-Account-Address"); addr != "" {
			c.Set(accountKey, addr)
		}
		c.Next()
	}
}

// AccountFrom returns the resolved account for the request, if any.
func AccountFrom(c *gin.Context) (string, bool) {
	v, ok := c.Get(accountKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// RateLimiter allows one mutating request per account per window. Entries
// outside the window are swept on insert so the map stays bounded by the
// number of accounts active within one window.
type RateLimiter struct {
	seen  map[string]time.Time
	mu    sync.Mutex
	limit time.Duration
}

func NewRateLimiter(limit time.Duration) *RateLimiter {
	return &RateLimiter{
		seen:  make(map[string]time.Time),
		limit: limit,
	}
}

func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := AccountFrom(c)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "X-Account-Address header required"})
			c.Abort()
			return
		}
		r.mu.Lock()
		last, exists := r.seen[account]
		if exists && time.Since(last) < r.limit {
			r.mu.Unlock()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		for acc, at := range r.seen {
			if time.Since(at) >= r.limit {
				delete(r.seen, acc)
			}
		}
		r.seen[account] = time.Now()
		r.mu.Unlock()
		c.Next()
	}
}

package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/Krishnaraaju/auct-sealed/utils"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	utils.Info("HTTP Request", map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	})
}

// BidRateLimiter hands each bidder a token bucket and turns away
// submissions that drain it. Buckets are created on first sight and
// kept for the life of the process.
type BidRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	perSec  rate.Limit
	burst   int
}

func NewBidRateLimiter(perSec float64, burst int) *BidRateLimiter {
	return &BidRateLimiter{
		buckets: make(map[string]*rate.Limiter),
		perSec:  rate.Limit(perSec),
		burst:   burst,
	}
}

func (rl *BidRateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.buckets[key]
	if !ok {
		limiter = rate.NewLimiter(rl.perSec, rl.burst)
		rl.buckets[key] = limiter
	}
	return limiter
}

// Middleware peeks bidder_id out of the request body, restoring the body
// for the handler, and charges that bidder's bucket. Requests without a
// readable bidder_id are keyed by client IP so malformed floods still
// land in a bucket.
func (rl *BidRateLimiter) Middleware(c *gin.Context) {
	key := c.ClientIP()

	if c.Request.Body != nil {
		raw, err := io.ReadAll(c.Request.Body)
		if err == nil {
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))

			var probe struct {
				BidderID string `json:"bidder_id"`
			}
			if json.Unmarshal(raw, &probe) == nil && probe.BidderID != "" {
				key = probe.BidderID
			}
		}
	}

	if !rl.limiterFor(key).Allow() {
		utils.Warn("Bid rate limit exceeded", map[string]any{
			"bidder_key": key,
			"path":       c.Request.URL.Path,
		})
		utils.JSONError(c, http.StatusTooManyRequests, errors.New("rate limit exceeded"), "too many bids, slow down")
		c.Abort()
		return
	}

	c.Next()
}

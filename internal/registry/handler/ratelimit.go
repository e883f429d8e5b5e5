package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterPool tracks one token bucket per client IP and sweeps idle entries.
type limiterPool struct {
	mu       sync.Mutex
	rps      int
	burst    int
	buckets  map[string]*rate.Limiter
	lastSeen map[string]time.Time
}

func newLimiterPool(rps, burst int) *limiterPool {
	p := &limiterPool{
		rps:      rps,
		burst:    burst,
		buckets:  make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
	go p.sweep()
	return p
}

func (p *limiterPool) allow(ip string) bool {
	p.mu.Lock()
	l, ok := p.buckets[ip]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.rps), p.burst)
		p.buckets[ip] = l
	}
	p.lastSeen[ip] = time.Now()
	p.mu.Unlock()
	return l.Allow()
}

func (p *limiterPool) sweep() {
	for {
		time.Sleep(5 * time.Minute)
		p.mu.Lock()
		for ip, seen := range p.lastSeen {
			if time.Since(seen) > 10*time.Minute {
				delete(p.buckets, ip)
				delete(p.lastSeen, ip)
			}
		}
		p.mu.Unlock()
	}
}

// RateLimiter returns a Gin middleware that enforces per-IP token-bucket
// rate limiting. rps is the steady-state requests per second; burst is the
// maximum burst size.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	pool := newLimiterPool(rps, burst)
	return func(c *gin.Context) {
		if !pool.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

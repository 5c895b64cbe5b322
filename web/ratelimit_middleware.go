package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ipLimiter 按客户端 IP 的限流器
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var (
	limiters   = make(map[string]*ipLimiter)
	limitersMu sync.Mutex
)

// RateLimitMiddleware 每 IP 令牌桶限流，qps<=0 时关闭限流
func RateLimitMiddleware(qps float64, burst int) gin.HandlerFunc {
	if qps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = int(qps)
		if burst == 0 {
			burst = 1
		}
	}

	// 定期清理长时间未出现的 IP
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limitersMu.Lock()
			cutoff := time.Now().Add(-30 * time.Minute)
			for ip, l := range limiters {
				if l.lastSeen.Before(cutoff) {
					delete(limiters, ip)
				}
			}
			limitersMu.Unlock()
		}
	}()

	return func(c *gin.Context) {
		ip := c.ClientIP()

		limitersMu.Lock()
		l, ok := limiters[ip]
		if !ok {
			l = &ipLimiter{limiter: rate.NewLimiter(rate.Limit(qps), burst)}
			limiters[ip] = l
		}
		l.lastSeen = time.Now()
		limitersMu.Unlock()

		if !l.limiter.Allow() {
			respondError(c, http.StatusTooManyRequests, "error.rate_limited")
			c.Abort()
			return
		}
		c.Next()
	}
}

// internal/middleware/rate_limit.go
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/javajoker/substance-compliance/internal/i18n"
	"github.com/javajoker/substance-compliance/internal/utils"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	visitors map[string]*visitor
	mtx      sync.Mutex
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     r,
		burst:    b,
	}

	// Clean up old visitors every minute
	go rl.cleanupVisitors()

	return rl
}

func (rl *RateLimiter) cleanupVisitors() {
	for {
		time.Sleep(time.Minute)
		rl.mtx.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, ip)
			}
		}
		rl.mtx.Unlock()
	}
}

func (rl *RateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mtx.Lock()
	defer rl.mtx.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		rl.visitors[ip] = &visitor{limiter, time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getVisitor(c.ClientIP())

		if !limiter.Allow() {
			message := i18n.T(utils.GetLangFromContext(c), i18n.KeyErrRateLimited)
			utils.ErrorResponse(c, http.StatusTooManyRequests, "RATE_LIMITED", message, nil)
			c.Abort()
			return
		}

		c.Next()
	}
}

// GeneralRateLimit applies the configured per-client request rate.
func GeneralRateLimit(requestsPerSecond float64, burst int) gin.HandlerFunc {
	return NewRateLimiter(rate.Limit(requestsPerSecond), burst).Middleware()
}

// AuthRateLimit allows 5 login attempts per minute per client.
func AuthRateLimit() gin.HandlerFunc {
	return NewRateLimiter(rate.Every(12*time.Second), 5).Middleware()
}

// UploadRateLimit allows 10 document uploads per minute per client.
func UploadRateLimit() gin.HandlerFunc {
	return NewRateLimiter(rate.Every(6*time.Second), 10).Middleware()
}

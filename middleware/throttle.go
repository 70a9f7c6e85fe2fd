package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hako/durafmt"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

// Throttle limits requests per client IP with a token bucket. Limiters of
// idle clients expire.
type Throttle struct {
	limit    rate.Limit
	burst    int
	limiters *cache.Cache
}

func NewThrottle(limit rate.Limit, burst int) *Throttle {
	return &Throttle{
		limit:    limit,
		burst:    burst,
		limiters: cache.New(limiterIdle, 2*limiterIdle),
	}
}

func (t *Throttle) limiter(key string) *rate.Limiter {
	if v, ok := t.limiters.Get(key); ok {
		lim := v.(*rate.Limiter)
		t.limiters.Set(key, lim, cache.DefaultExpiration)
		return lim
	}
	lim := rate.NewLimiter(t.limit, t.burst)
	if err := t.limiters.Add(key, lim, cache.DefaultExpiration); err != nil {
		// Lost a race with another request from the same client.
		if v, ok := t.limiters.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// Handler rejects a request with 429 when its client is over the limit.
func (t *Throttle) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		r := t.limiter(c.ClientIP()).Reserve()
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			wait := delay.Round(time.Second)
			if wait < time.Second {
				wait = time.Second
			}
			c.Header("Retry-After", fmt.Sprintf("%.0f", wait.Seconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   fmt.Sprintf("Too many attempts, please wait %s", durafmt.Parse(wait).LimitFirstN(1)),
			})
			return
		}
		c.Next()
	}
}

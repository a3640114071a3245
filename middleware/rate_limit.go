package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/aiblog/utils"
)

const limiterIdle = 5 * time.Minute

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// limiterSet holds one token bucket per client. Idle buckets are swept at most
// once per limiterIdle.
type limiterSet struct {
	mu        sync.Mutex
	limiters  map[string]*rateLimiter
	lastSweep time.Time
	rate      rate.Limit
	burst     int
}

func newLimiterSet(perMinute int) *limiterSet {
	return &limiterSet{
		limiters: map[string]*rateLimiter{},
		rate:     rate.Every(time.Minute / time.Duration(max(perMinute, 1))),
		burst:    max(perMinute/2, 1),
	}
}

func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= limiterIdle {
		for k, l := range s.limiters {
			if now.After(l.expires) {
				delete(s.limiters, k)
			}
		}
		s.lastSweep = now
	}
	l, ok := s.limiters[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(s.rate, s.burst)}
		s.limiters[key] = l
	}
	l.expires = now.Add(limiterIdle)
	return l.limiter
}

// RateLimit applies a per client IP token bucket allowing perMinute requests.
func RateLimit(perMinute int) gin.HandlerFunc {
	set := newLimiterSet(perMinute)
	return func(ctx *gin.Context) {
		if !set.get(ctx.ClientIP(), time.Now()).Allow() {
			utils.Abort(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded", nil)
			return
		}
		ctx.Next()
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

package utils

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	loginFailPrefix     = "auth:loginfail:"
	defaultLoginFailMax = 5
	defaultLoginLockout = 15 * time.Minute
)

// LoginGuard counts failed logins per client IP and username and locks the
// pair out once the limit is reached. Without redis it allows everything.
type LoginGuard struct {
	rc      *redis.Client
	max     int
	lockout time.Duration
}

// NewLoginGuard creates a guard allowing maxFailures within lockout.
func NewLoginGuard(rc *redis.Client, maxFailures int, lockout time.Duration) *LoginGuard {
	if maxFailures <= 0 {
		maxFailures = defaultLoginFailMax
	}
	if lockout <= 0 {
		lockout = defaultLoginLockout
	}
	return &LoginGuard{rc: rc, max: maxFailures, lockout: lockout}
}

func loginFailKey(ip, username string) string {
	return loginFailPrefix + ip + ":" + strings.ToLower(strings.TrimSpace(username))
}

// Locked reports whether the pair has used up its attempts.
func (g *LoginGuard) Locked(ctx context.Context, ip, username string) bool {
	if g == nil || g.rc == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	n, err := g.rc.Get(ctx, loginFailKey(ip, username)).Int()
	if err != nil {
		// fail open, redis.Nil included
		return false
	}
	return n >= g.max
}

// Fail records a failed attempt and returns the running count.
func (g *LoginGuard) Fail(ctx context.Context, ip, username string) int {
	if g == nil || g.rc == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	key := loginFailKey(ip, username)
	n, err := g.rc.Incr(ctx, key).Result()
	if err != nil {
		return 0
	}
	if n == 1 {
		_ = g.rc.Expire(ctx, key, g.lockout).Err()
	}
	return int(n)
}

// Reset clears the counter after a successful login.
func (g *LoginGuard) Reset(ctx context.Context, ip, username string) {
	if g == nil || g.rc == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_ = g.rc.Del(ctx, loginFailKey(ip, username)).Err()
}

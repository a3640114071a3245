package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const blacklistPrefix = "jwt:blacklist:"

// blacklistEntry keeps expiration metadata for a JWT token.
type blacklistEntry struct {
	expiresAt time.Time
}

// TokenBlacklist remembers revoked tokens until they would have expired.
// Redis is preferred; without a client the list lives in process memory.
type TokenBlacklist struct {
	rc      *redis.Client
	mu      sync.RWMutex
	entries map[string]blacklistEntry
	now     func() time.Time
}

// NewTokenBlacklist creates a blacklist backed by rc, or by memory when rc is nil.
func NewTokenBlacklist(rc *redis.Client) *TokenBlacklist {
	return &TokenBlacklist{
		rc:      rc,
		entries: map[string]blacklistEntry{},
		now:     time.Now,
	}
}

// Revoke stores a token until expiresAt to support logout semantics.
func (b *TokenBlacklist) Revoke(ctx context.Context, token string, expiresAt time.Time) {
	ttl := expiresAt.Sub(b.now())
	if ttl <= 0 {
		return
	}
	if b.rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		err := b.rc.Set(ctx, blacklistPrefix+token, "1", ttl).Err()
		if err == nil {
			return
		}
		Sugar.Warnf("token blacklist write failed, keeping it in memory: %v", err)
	}
	b.mu.Lock()
	b.entries[token] = blacklistEntry{expiresAt: expiresAt}
	b.mu.Unlock()
}

// IsRevoked checks if a token was revoked before natural expiration.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, token string) bool {
	if b.rc != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		n, err := b.rc.Exists(ctx, blacklistPrefix+token).Result()
		if err == nil && n > 0 {
			return true
		}
		// On redis error fall through to memory; fail open to avoid accidental lockout
	}

	b.mu.RLock()
	entry, ok := b.entries[token]
	b.mu.RUnlock()
	if !ok {
		return false
	}

	if b.now().After(entry.expiresAt) {
		b.mu.Lock()
		delete(b.entries, token)
		b.mu.Unlock()
		return false
	}
	return true
}

// Package security holds request guards for the HTTP surface
package security

import (
	"context"
	"sync"
	"time"

	"github.com/raaihank/civicguard/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	config  *config.RateLimitConfig
	buckets map[string]*bucket
	mu      sync.RWMutex
	now     func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		config:  cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow reports whether a request from clientIP may proceed
func (r *RateLimiter) Allow(clientIP string) bool {
	if r.config == nil || !r.config.Enabled {
		return true
	}

	b := r.getBucket(clientIP)
	now := r.now()

	b.mu.Lock()
	b.lastSeen = now
	b.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Tokens returns the tokens left for a client, or -1 if it has no bucket
func (r *RateLimiter) Tokens(clientIP string) float64 {
	r.mu.RLock()
	b, exists := r.buckets[clientIP]
	r.mu.RUnlock()

	if !exists {
		return -1
	}
	return b.limiter.TokensAt(r.now())
}

func (r *RateLimiter) getBucket(clientIP string) *bucket {
	r.mu.RLock()
	b, exists := r.buckets[clientIP]
	r.mu.RUnlock()

	if exists {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists := r.buckets[clientIP]; exists {
		return b
	}

	burst := r.config.Burst
	if burst <= 0 {
		burst = r.config.RequestsPerMin
	}
	b = &bucket{
		limiter:  rate.NewLimiter(rate.Limit(float64(r.config.RequestsPerMin)/60.0), burst),
		lastSeen: r.now(),
	}
	r.buckets[clientIP] = b
	return b
}

// CleanupOldBuckets removes buckets idle for longer than maxIdle
func (r *RateLimiter) CleanupOldBuckets(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for ip, b := range r.buckets {
		b.mu.Lock()
		idle := b.lastSeen.Before(cutoff)
		b.mu.Unlock()
		if idle {
			delete(r.buckets, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupRoutine prunes idle buckets until ctx is done
func (r *RateLimiter) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOldBuckets(time.Hour)
			}
		}
	}()
}

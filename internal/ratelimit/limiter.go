package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with a name and last-use tracking
type Limiter struct {
	limiter *rate.Limiter
	name    string
	mu      sync.Mutex
	seen    time.Time
}

// NewLimiter creates a new rate limiter
// perMinute specifies the number of requests allowed per minute
func NewLimiter(name string, perMinute int) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	// Convert per-minute rate to per-second
	rps := float64(perMinute) / 60.0
	// Allow burst of up to 10 requests or 1/10th of per-minute limit
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	if burst > 10 {
		burst = 10
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    name,
		seen:    time.Now(),
	}
}

// Wait blocks until a token is available or context is cancelled
func (l *Limiter) Wait(ctx context.Context) error {
	l.touch()
	return l.limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (l *Limiter) Allow() bool {
	l.touch()
	return l.limiter.Allow()
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.name
}

// LastSeen returns when the limiter was last used
func (l *Limiter) LastSeen() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen
}

func (l *Limiter) touch() {
	l.mu.Lock()
	l.seen = time.Now()
	l.mu.Unlock()
}

// KeyedLimiter hands out one limiter per key (e.g. client address),
// creating them on first use with the same per-minute rate.
type KeyedLimiter struct {
	limiters  map[string]*Limiter
	perMinute int
	mu        sync.Mutex
}

// NewKeyedLimiter creates a new keyed limiter
func NewKeyedLimiter(perMinute int) *KeyedLimiter {
	return &KeyedLimiter{
		limiters:  make(map[string]*Limiter),
		perMinute: perMinute,
	}
}

// Get returns the limiter for key, creating it if needed
func (k *KeyedLimiter) Get(key string) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.limiters[key]
	if !ok {
		l = NewLimiter(key, k.perMinute)
		k.limiters[key] = l
	}
	return l
}

// Allow reports whether key may make a request now
func (k *KeyedLimiter) Allow(key string) bool {
	return k.Get(key).Allow()
}

// Wait waits on the limiter for key
func (k *KeyedLimiter) Wait(ctx context.Context, key string) error {
	return k.Get(key).Wait(ctx)
}

// Len returns the number of tracked keys
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.limiters)
}

// Prune drops limiters idle for longer than maxIdle and returns how many were removed
func (k *KeyedLimiter) Prune(maxIdle time.Duration) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for key, l := range k.limiters {
		if l.LastSeen().Before(cutoff) {
			delete(k.limiters, key)
			removed++
		}
	}
	return removed
}

// Package ratelimit applies a per-client token bucket to mutating requests.
package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Config struct {
	RequestsPerSecond float64
	Burst             int
	CleanupInterval   time.Duration
	IdleTimeout       time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 5,
		Burst:             20,
		CleanupInterval:   5 * time.Minute,
		IdleTimeout:       10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client address.
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*clientLimiter
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
	config       Config
	now          func() time.Time
}

// NewLimiter starts the background cleanup; call Stop to end it.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = def.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}

	rl := &Limiter{
		clients:     make(map[string]*clientLimiter),
		stopCleanup: make(chan struct{}),
		config:      config,
		now:         time.Now,
	}
	go rl.startCleanup()
	return rl
}

func (rl *Limiter) limiterFor(clientIP string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cl, ok := rl.clients[clientIP]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)}
		rl.clients[clientIP] = cl
	}
	cl.lastSeen = rl.now()
	return cl.limiter
}

// Allow consumes a token for clientIP. When none is available it returns
// false and how long until one is.
func (rl *Limiter) Allow(clientIP string) (bool, time.Duration) {
	limiter := rl.limiterFor(clientIP)
	now := rl.now()

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 0
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *Limiter) cleanupStaleEntries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.config.IdleTimeout)
	removed := 0
	for ip, cl := range rl.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}

// ActiveClients returns the number of currently tracked clients
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Middleware limits non-safe methods; GET, HEAD and OPTIONS pass through.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			ok, delay := rl.Allow(extractIP(r))
			if !ok {
				writeTooManyRequests(w, delay)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Burst))
			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter, delay time.Duration) {
	retryAfter := int(delay.Seconds()) + 1
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "Слишком много запросов, попробуйте позже",
	})
}

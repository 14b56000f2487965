// Package cache holds short-lived copies of remote reference data
// (currencies, categories) so that every expense view does not refetch them.
package cache

import (
	"context"
	"time"

	"kincore/internal/log"
)

// Cache is a string-keyed store of values that expire.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Purge()
	Size() int
}

// Cleaner is implemented by caches that can drop expired entries on demand.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically sweeps registered caches until its context ends.
type Manager struct {
	caches []Cleaner
	logger *log.Logger
	done   chan struct{}
}

func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Nop()
	}
	return &Manager{
		logger: logger.WithComponent(log.ComponentCache),
		done:   make(chan struct{}),
	}
}

// Register adds a cache to the sweep. Call before Start.
func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

// Start runs the sweep in a goroutine. Wait blocks until ctx is cancelled and the sweep exits.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	go m.run(ctx, interval)
}

func (m *Manager) run(ctx context.Context, interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("Expired cache entries removed", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sweep cleans every registered cache once and returns the number of removed entries.
func (m *Manager) Sweep() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

func (m *Manager) Wait() {
	<-m.done
}

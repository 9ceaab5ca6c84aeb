package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type windowEntry struct {
	count   int
	resetAt time.Time
}

// FixedWindowLimiter counts requests per key inside fixed windows.
// Window-edge bursting is an accepted trade-off.
type FixedWindowLimiter struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewFixedWindowLimiter() *FixedWindowLimiter {
	return &FixedWindowLimiter{
		entries: make(map[string]*windowEntry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Allow reports whether the key may act. A fresh or elapsed window
// starts at count 1; inside the window the count grows until limit.
func (l *FixedWindowLimiter) Allow(key string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		l.entries[key] = &windowEntry{count: 1, resetAt: now.Add(window)}
		return true
	}
	if e.count >= limit {
		return false
	}
	e.count++
	return true
}

// Sweep drops elapsed windows to bound memory.
func (l *FixedWindowLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
		}
	}
}

// StartSweeper sweeps on the given interval until Stop is called.
func (l *FixedWindowLimiter) StartSweeper(interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-t.C:
				l.Sweep()
				log.Debug().Str("module", "app.ratelimit").Msg("limiter swept")
			}
		}
	}()
}

func (l *FixedWindowLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

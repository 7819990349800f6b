// Package ratelimit counts turns per key in fixed windows, in memory or in
// Redis, with a failover wrapper that drops to memory when Redis is down.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count     int
	expiresAt time.Time
}

// Memory is a process-local fixed window counter.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	checks  int
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*entry), now: time.Now}
}

func (m *Memory) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.checks++
	// раз в 1000 проверок чистим протухшие окна
	if m.checks%1000 == 0 {
		for k, e := range m.entries {
			if now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
	}

	e, ok := m.entries[key]
	if !ok || now.After(e.expiresAt) {
		e = &entry{expiresAt: now.Add(window)}
		m.entries[key] = e
	}
	e.count++
	return e.count <= limit, nil
}

package tokencache

import (
	"context"
	"sync"
	"time"

	"github.com/bryanwahyu/pdaudit/internal/domain/ai"
)

type entry struct {
	token    string
	deadline time.Time
}

// Memory is a process-local token cache with an injectable clock.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory uses time.Now when now is nil.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{entries: make(map[string]entry), now: now}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if !m.now().Before(e.deadline) {
		delete(m.entries, key)
		return "", false
	}
	return e.token, true
}

// Set ignores tokens that are already inside the safety margin.
func (m *Memory) Set(_ context.Context, key, token string, expiresAt time.Time) {
	deadline := expiresAt.Add(-ai.TokenSafetyMargin)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.now().Before(deadline) {
		delete(m.entries, key)
		return
	}
	m.entries[key] = entry{token: token, deadline: deadline}
}

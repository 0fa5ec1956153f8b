package synclock

import (
	"context"
	"sync"
)

// MemoryGuard serializes syncs inside a single process.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]uint64
	seq  uint64
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]uint64)}
}

func (g *MemoryGuard) Acquire(_ context.Context, merchantID string) (Lease, error) {
	merchantID, err := normalizeKey(merchantID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[merchantID]; busy {
		return nil, ErrSyncInProgress
	}
	g.seq++
	g.held[merchantID] = g.seq
	return &memoryLease{guard: g, key: merchantID, token: g.seq}, nil
}

type memoryLease struct {
	guard *MemoryGuard
	key   string
	token uint64
}

func (l *memoryLease) Release(context.Context) error {
	l.guard.mu.Lock()
	defer l.guard.mu.Unlock()
	if l.guard.held[l.key] == l.token {
		delete(l.guard.held, l.key)
	}
	return nil
}

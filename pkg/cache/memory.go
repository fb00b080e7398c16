package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBackend stores entries in an in-process map. It is the fallback when
// durable storage cannot be initialized, and the default for tests.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]*Entry)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryBackend) Put(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries[e.Key] = &cp
	return nil
}

func (m *MemoryBackend) Touch(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.HitCount++
		e.LastAccessed = at
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryBackend) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryBackend) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*Entry)
	return nil
}

func (m *MemoryBackend) TotalSize(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, e := range m.entries {
		total += e.SizeBytes
	}
	return total, nil
}

func (m *MemoryBackend) EvictLRU(_ context.Context, need int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
	})

	var freed int64
	var n int
	for _, e := range candidates {
		if freed >= need {
			break
		}
		delete(m.entries, e.Key)
		freed += e.SizeBytes
		n++
	}
	return n, nil
}

func (m *MemoryBackend) Stats(_ context.Context, now time.Time) (BackendStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s BackendStats
	for _, e := range m.entries {
		s.Entries++
		s.TotalSizeBytes += e.SizeBytes
		s.TotalHits += e.HitCount
		if e.Expired(now) {
			s.ExpiredEntries++
		}
	}
	return s, nil
}

func (m *MemoryBackend) Close() error { return nil }

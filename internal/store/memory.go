package store

import (
	"context"
	"sync"
	"time"
)

// Memory is the process-local backend. Expiry is enforced manually when a
// key is read; stale entries are dropped lazily at that point.
type Memory struct {
	mu    sync.RWMutex
	kv    map[string]memoryEntry
	lists map[string]memoryList

	now func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
}

type memoryList struct {
	items     [][]byte
	expiresAt time.Time
}

func NewMemory() *Memory {
	return &Memory{
		kv:    make(map[string]memoryEntry),
		lists: make(map[string]memoryList),
		now:   time.Now,
	}
}

func (m *Memory) expired(at time.Time) bool {
	return !at.IsZero() && m.now().After(at)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	e, ok := m.kv[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if m.expired(e.expiresAt) {
		m.mu.Lock()
		delete(m.kv, key)
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.kv[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.kv, key)
	delete(m.lists, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListAppend(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.lists[key]
	if m.expired(l.expiresAt) {
		l = memoryList{}
	}
	l.items = append(l.items, value)
	if ttl > 0 {
		l.expiresAt = m.now().Add(ttl)
	}
	m.lists[key] = l
	return nil
}

func (m *Memory) ListRange(_ context.Context, key string) ([][]byte, error) {
	m.mu.RLock()
	l, ok := m.lists[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if m.expired(l.expiresAt) {
		m.mu.Lock()
		delete(m.lists, key)
		m.mu.Unlock()
		return nil, nil
	}
	out := make([][]byte, len(l.items))
	copy(out, l.items)
	return out, nil
}

func (m *Memory) ListTrim(_ context.Context, key string, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lists[key]
	if !ok || m.expired(l.expiresAt) {
		return nil
	}
	if len(l.items) > max {
		l.items = l.items[len(l.items)-max:]
		m.lists[key] = l
	}
	return nil
}

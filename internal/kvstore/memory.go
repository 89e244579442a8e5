package kvstore

import (
	"bytes"
	"context"
	"sync"
	"time"
)

type item struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local Store. Expiry is checked on every read; Sweep
// only bounds memory growth.
type Memory struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
}

type MemoryOption func(*Memory)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		items: make(map[string]item),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) live(it item, ok bool) bool {
	return ok && m.now().Before(it.expiresAt)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[key]
	if !m.live(it, ok) {
		return nil, ErrNotFound
	}
	return bytes.Clone(it.value), nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[key] = item{value: bytes.Clone(value), expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Create(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := validateTTL(ttl); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if it, ok := m.items[key]; m.live(it, ok) {
		return ErrConflict
	}
	m.items[key] = item{value: bytes.Clone(value), expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) CompareAndSwap(_ context.Context, key string, old, new []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[key]
	if !m.live(it, ok) || !bytes.Equal(it.value, old) {
		return false, nil
	}
	it.value = bytes.Clone(new)
	m.items[key] = it
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.items, key)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Sweep removes expired entries and returns how many were dropped.
func (m *Memory) Sweep(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for k, it := range m.items {
		if !now.Before(it.expiresAt) {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of entries held, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

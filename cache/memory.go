package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	token     string
	expiresAt time.Time
}

type MemoryStore struct {
	mutex   sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, provider, account string) (string, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	key := tokenKey(provider, account)
	e, ok := m.entries[key]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.token, true, nil
}

func (m *MemoryStore) Put(_ context.Context, provider, account, token string, expiresAt time.Time) error {
	now := m.now()
	d := ttl(expiresAt, now)
	if d <= 0 {
		return nil
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.entries[tokenKey(provider, account)] = entry{token: token, expiresAt: now.Add(d)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, provider, account string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.entries, tokenKey(provider, account))
	return nil
}

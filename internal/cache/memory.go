package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache.
// Útil para desarrollo y testing; la limpieza de expirados corre sola.
type memoryClient struct {
	prefix string
	c      *gocache.Cache

	// mu serializa GetDel: go-cache no trae una primitiva get-and-delete.
	mu sync.Mutex
}

// NewMemory crea un cliente de cache en memoria.
func NewMemory(prefix string, defaultTTL time.Duration) *memoryClient {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(defaultTTL, time.Minute),
	}
}

func (m *memoryClient) key(k string) string {
	if m.prefix == "" {
		return k
	}
	return m.prefix + ":" + k
}

func (m *memoryClient) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *memoryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		// go-cache interpreta DefaultExpiration con el TTL del constructor
		m.c.Set(m.key(key), value, gocache.DefaultExpiration)
		return nil
	}
	m.c.Set(m.key(key), value, ttl)
	return nil
}

func (m *memoryClient) Delete(ctx context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *memoryClient) GetDel(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	m.c.Delete(m.key(key))
	s, _ := v.(string)
	return s, nil
}

func (m *memoryClient) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.c.Get(m.key(key))
	return ok, nil
}

func (m *memoryClient) Ping(ctx context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}

package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// MultiLimiter permite consultar con límites distintos por endpoint.
type MultiLimiter interface {
	AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// MultiRedisLimiter usa límites dinámicos manteniendo el algoritmo
// fixed-window del RedisLimiter.
type MultiRedisLimiter struct {
	client *rdb.Client
	prefix string
	mu     sync.RWMutex
	// Cache de limiters por configuración para eficiencia
	limiters map[string]*RedisLimiter
}

func NewMultiRedisLimiter(client *rdb.Client, prefix string) *MultiRedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &MultiRedisLimiter{
		client:   client,
		prefix:   prefix,
		limiters: make(map[string]*RedisLimiter),
	}
}

// AllowWithLimits implementa la interfaz MultiLimiter.
func (m *MultiRedisLimiter) AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	configKey := fmt.Sprintf("%d:%s", limit, window.String())

	m.mu.RLock()
	limiter, exists := m.limiters[configKey]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		// Double-check para evitar crear dos limiters en paralelo
		if limiter, exists = m.limiters[configKey]; !exists {
			limiter = NewRedisLimiter(m.client, m.prefix, limit, window)
			m.limiters[configKey] = limiter
		}
		m.mu.Unlock()
	}

	return limiter.Allow(ctx, key)
}

// Allow implementa la interfaz Limiter con la configuración por defecto.
// Solo se usa en el middleware global, no en endpoints específicos.
func (m *MultiRedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	return m.AllowWithLimits(ctx, key, 60, time.Minute)
}

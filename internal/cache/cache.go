// Package cache provee una abstracción de cache con soporte multi-backend.
//
// Soporta:
//   - Memory (in-process, para desarrollo/testing)
//   - Redis (distribuido, para producción)
//
// El subsistema SSO lo usa como cache inyectable de políticas de seguridad
// por tenant: nada de estado mutable a nivel de módulo.
package cache

import (
	"context"
	"time"
)

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL opcional. Si ttl es 0, no expira.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// GetDel obtiene y elimina el valor en una sola operación atómica.
	// Retorna ErrNotFound si no existe. Es la primitiva para credenciales
	// de un solo uso: dos llamadas concurrentes nunca ven el mismo valor.
	GetDel(ctx context.Context, key string) (string, error)

	// Exists verifica si una key existe.
	Exists(ctx context.Context, key string) (bool, error)

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string
	Password string
	DB       int
	Prefix   string // prefijo para todas las keys

	// DefaultTTL del backend memory cuando Set recibe ttl 0.
	DefaultTTL time.Duration
}

// Errores de cache.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (e errNotFound) Error() string { return "cache: key not found" }

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

// New crea un cliente de cache según la configuración.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	default:
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	}
}

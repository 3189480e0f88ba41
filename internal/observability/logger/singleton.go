package logger

import (
	"sync"

	"go.uber.org/zap"
)

// Singleton del proceso. Los paquetes cuelgan sub-loggers vía Named;
// el logger request-scoped viaja por contexto (ver context.go).
var (
	once     sync.Once
	instance *zap.Logger
)

// Init construye el logger del proceso. Idempotente: la primera
// configuración gana y las llamadas siguientes no hacen nada.
func Init(cfg Config) {
	once.Do(func() {
		if cfg.ServiceName == "" {
			cfg.ServiceName = "vincsso"
		}
		instance = build(cfg)
	})
}

// L retorna el logger del proceso. Si nadie llamó Init arranca en modo
// dev con nivel info, así los tests no necesitan bootstrap.
func L() *zap.Logger {
	Init(Config{Env: "dev", Level: "info"})
	return instance
}

// Named retorna un sub-logger con nombre de componente (ej "sso.sessions").
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync descarga los buffers pendientes. Para el defer de main.
func Sync() error {
	if instance == nil {
		return nil
	}
	return instance.Sync()
}

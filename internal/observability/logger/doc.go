// Package logger provides a singleton Zap logger with context-based scoping.
//
// # Design
//
//   - Singleton: una sola instancia global inicializada con Init().
//   - Context Scoping: cada request lleva su logger "scoped" con campos
//     adicionales (request_id, tenant_id, etc.) sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//
// # Uso
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{
//	    Env:   os.Getenv("APP_ENV"),
//	    Level: os.Getenv("LOG_LEVEL"),
//	})
//	defer logger.Sync()
//
// En handlers/services (con contexto):
//
//	log := logger.From(ctx)
//	log.Info("session revoked", logger.UserID(userID))
package logger

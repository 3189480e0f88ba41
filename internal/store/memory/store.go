// Package memory implementa los repositorios del dominio en memoria.
// Se usa en modo single-node sin Postgres y en los tests unitarios.
// Todas las operaciones son seguras para uso concurrente.
package memory

import (
	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// Store agrupa los repositorios en memoria.
type Store struct {
	Sessions       repository.SessionRepository
	AuthCodes      repository.AuthCodeRepository
	LoginAttempts  repository.LoginAttemptRepository
	BlockedIPs     repository.BlockedIPRepository
	SecurityConfig repository.SecurityConfigRepository
	Clients        repository.ClientRepository
}

// New crea un Store en memoria con todos los repositorios vacíos.
func New() *Store {
	return &Store{
		Sessions:       NewSessionRepo(),
		AuthCodes:      NewAuthCodeRepo(),
		LoginAttempts:  NewLoginAttemptRepo(),
		BlockedIPs:     NewBlockedIPRepo(),
		SecurityConfig: NewSecurityConfigRepo(),
		Clients:        NewClientRepo(),
	}
}

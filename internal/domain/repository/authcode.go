package repository

import (
	"context"
	"time"
)

// Métodos PKCE soportados (RFC 7636).
const (
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

// AuthorizationCode es la credencial de un solo uso que une un login exitoso
// con el intercambio de tokens. El code crudo nunca se persiste: solo su hash.
type AuthorizationCode struct {
	ID          string
	CodeHash    string
	ClientID    string
	TenantID    string
	UserID      string
	UserEmail   string
	UserRole    string
	RedirectURI string
	State       *string
	Scope       *string

	// PKCE: challenge + method ("plain" | "S256"), opcionales.
	CodeChallenge   *string
	ChallengeMethod *string

	// Payload opaco del perfil de usuario que viaja hasta el token exchange.
	ProfileJSON []byte

	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Valid reporta si el code puede consumirse al instante dado.
func (c *AuthorizationCode) Valid(now time.Time) bool {
	return c.UsedAt == nil && now.Before(c.ExpiresAt)
}

// CreateAuthCodeInput contiene los datos para emitir un authorization code.
type CreateAuthCodeInput struct {
	CodeHash        string
	ClientID        string
	TenantID        string
	UserID          string
	UserEmail       string
	UserRole        string
	RedirectURI     string
	State           string
	Scope           string
	CodeChallenge   string
	ChallengeMethod string
	ProfileJSON     []byte
	ExpiresAt       time.Time
}

// AuthCodeRepository define operaciones sobre authorization codes.
type AuthCodeRepository interface {
	// Create persiste un code recién emitido.
	Create(ctx context.Context, input CreateAuthCodeInput) (*AuthorizationCode, error)

	// Consume marca el code como usado y lo retorna, en UNA SOLA operación
	// condicional (used_at IS NULL AND expires_at > now). Dos consumos
	// concurrentes del mismo code producen exactamente un éxito; el resto
	// recibe ErrCodeConsumed. Nunca emular con read-then-write.
	Consume(ctx context.Context, codeHash string, now time.Time) (*AuthorizationCode, error)

	// DeleteExpired elimina físicamente codes vencidos o ya usados.
	DeleteExpired(ctx context.Context) (int, error)
}

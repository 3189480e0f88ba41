package repository

import (
	"context"
	"regexp"
	"time"
)

// clientIDRe: minúsculas, dígitos y guiones, 3..64.
var clientIDRe = regexp.MustCompile(`^[a-z0-9-]{3,64}$`)

// ValidClientID reporta si el client_id cumple el formato permitido.
func ValidClientID(id string) bool {
	return clientIDRe.MatchString(id)
}

// AuthClient es una relying party registrada. El secret se guarda hasheado
// (argon2id); el valor crudo solo existe al momento del registro.
type AuthClient struct {
	ID             string
	ClientID       string
	TenantID       string
	Name           string
	SecretHash     string
	RedirectURIs   []string
	AllowedOrigins []string
	App            ClientApp
	FirstParty     bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AllowsRedirect verifica match EXACTO contra las URIs registradas.
// Nada de prefijos ni wildcards.
func (c *AuthClient) AllowsRedirect(uri string) bool {
	for _, ru := range c.RedirectURIs {
		if ru == uri {
			return true
		}
	}
	return false
}

// CreateClientInput contiene los datos para registrar un client.
type CreateClientInput struct {
	ClientID       string
	TenantID       string
	Name           string
	SecretHash     string
	RedirectURIs   []string
	AllowedOrigins []string
	App            ClientApp
	FirstParty     bool
}

// ClientRepository define el acceso a clients registrados.
type ClientRepository interface {
	// Create registra un client nuevo. ErrConflict si el client_id ya existe.
	Create(ctx context.Context, input CreateClientInput) (*AuthClient, error)

	// GetByClientID retorna el client por su client_id público.
	GetByClientID(ctx context.Context, clientID string) (*AuthClient, error)

	// List retorna los clients de un tenant.
	List(ctx context.Context, tenantID string) ([]AuthClient, error)

	// SetActive habilita/deshabilita un client.
	SetActive(ctx context.Context, clientID string, active bool) error
}

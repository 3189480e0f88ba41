package sso

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/observability/logger"
	"github.com/dropDatabas3/vincsso/internal/security/password"
	"github.com/dropDatabas3/vincsso/internal/security/token"
)

const clientSecretBytes = 32

// ClientRegistry gestiona las relying parties registradas.
type ClientRegistry struct {
	repo repository.ClientRepository
}

// NewClientRegistry crea el registro de clients.
func NewClientRegistry(repo repository.ClientRepository) *ClientRegistry {
	return &ClientRegistry{repo: repo}
}

// RegisterInput describe el client a registrar.
type RegisterInput struct {
	ClientID       string
	TenantID       string
	Name           string
	RedirectURIs   []string
	AllowedOrigins []string
	App            repository.ClientApp
	FirstParty     bool
}

// Register crea el client y genera su secret. El secret crudo se retorna
// UNA sola vez; solo el hash argon2id queda persistido.
func (r *ClientRegistry) Register(ctx context.Context, input RegisterInput) (*repository.AuthClient, string, error) {
	if !repository.ValidClientID(input.ClientID) || !input.App.Valid() || len(input.RedirectURIs) == 0 {
		return nil, "", repository.ErrInvalidInput
	}

	secret, err := token.GenerateOpaqueToken(clientSecretBytes)
	if err != nil {
		return nil, "", fmt.Errorf("generate client secret: %w", err)
	}
	hash, err := password.Hash(password.Default, secret)
	if err != nil {
		return nil, "", fmt.Errorf("hash client secret: %w", err)
	}

	c, err := r.repo.Create(ctx, repository.CreateClientInput{
		ClientID:       input.ClientID,
		TenantID:       input.TenantID,
		Name:           input.Name,
		SecretHash:     hash,
		RedirectURIs:   input.RedirectURIs,
		AllowedOrigins: input.AllowedOrigins,
		App:            input.App,
		FirstParty:     input.FirstParty,
	})
	if err != nil {
		return nil, "", err
	}
	logger.Named("sso.clients").Info("client registered",
		logger.ClientID(c.ClientID),
		logger.TenantID(c.TenantID),
	)
	return c, secret, nil
}

// Authenticate valida client_id + secret. Retorna ErrInvalidClient para
// client desconocido, inactivo o secret incorrecto, sin distinguir causas.
func (r *ClientRegistry) Authenticate(ctx context.Context, clientID, secret string) (*repository.AuthClient, error) {
	c, err := r.repo.GetByClientID(ctx, clientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidClient
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	if !c.IsActive || !password.Verify(secret, c.SecretHash) {
		return nil, ErrInvalidClient
	}
	return c, nil
}

// Resolve retorna el client activo sin verificar secret (flujos PKCE de
// clients públicos). ErrInvalidClient si no existe o está inactivo.
func (r *ClientRegistry) Resolve(ctx context.Context, clientID string) (*repository.AuthClient, error) {
	c, err := r.repo.GetByClientID(ctx, clientID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidClient
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	if !c.IsActive {
		return nil, ErrInvalidClient
	}
	return c, nil
}

// ValidateRedirect chequea match exacto contra las URIs registradas.
func (r *ClientRegistry) ValidateRedirect(c *repository.AuthClient, uri string) error {
	if uri == "" || !c.AllowsRedirect(uri) {
		return ErrInvalidRedirect
	}
	return nil
}

// List retorna los clients del tenant.
func (r *ClientRegistry) List(ctx context.Context, tenantID string) ([]repository.AuthClient, error) {
	return r.repo.List(ctx, tenantID)
}

// SetActive habilita o deshabilita un client.
func (r *ClientRegistry) SetActive(ctx context.Context, clientID string, active bool) error {
	return r.repo.SetActive(ctx, clientID, active)
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// clientRepo implementa repository.ClientRepository.
type clientRepo struct {
	mu         sync.RWMutex
	byClientID map[string]*repository.AuthClient
}

// NewClientRepo crea un repositorio de clients en memoria.
func NewClientRepo() repository.ClientRepository {
	return &clientRepo{byClientID: make(map[string]*repository.AuthClient)}
}

func cloneClient(c *repository.AuthClient) *repository.AuthClient {
	cp := *c
	cp.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	cp.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return &cp
}

func (r *clientRepo) Create(ctx context.Context, input repository.CreateClientInput) (*repository.AuthClient, error) {
	if !repository.ValidClientID(input.ClientID) {
		return nil, repository.ErrInvalidInput
	}
	now := time.Now().UTC()
	c := &repository.AuthClient{
		ID:             uuid.NewString(),
		ClientID:       input.ClientID,
		TenantID:       input.TenantID,
		Name:           input.Name,
		SecretHash:     input.SecretHash,
		RedirectURIs:   append([]string(nil), input.RedirectURIs...),
		AllowedOrigins: append([]string(nil), input.AllowedOrigins...),
		App:            input.App,
		FirstParty:     input.FirstParty,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byClientID[c.ClientID]; ok {
		return nil, repository.ErrConflict
	}
	r.byClientID[c.ClientID] = c
	return cloneClient(c), nil
}

func (r *clientRepo) GetByClientID(ctx context.Context, clientID string) (*repository.AuthClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byClientID[clientID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneClient(c), nil
}

func (r *clientRepo) List(ctx context.Context, tenantID string) ([]repository.AuthClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []repository.AuthClient
	for _, c := range r.byClientID {
		if c.TenantID == tenantID {
			out = append(out, *cloneClient(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func (r *clientRepo) SetActive(ctx context.Context, clientID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byClientID[clientID]
	if !ok {
		return repository.ErrNotFound
	}
	c.IsActive = active
	c.UpdatedAt = time.Now().UTC()
	return nil
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// authCodeRepo implementa repository.AuthCodeRepository sobre un map.
type authCodeRepo struct {
	mu     sync.Mutex
	byHash map[string]*repository.AuthorizationCode
}

// NewAuthCodeRepo crea un repositorio de authorization codes en memoria.
func NewAuthCodeRepo() repository.AuthCodeRepository {
	return &authCodeRepo{byHash: make(map[string]*repository.AuthorizationCode)}
}

func cloneCode(c *repository.AuthorizationCode) *repository.AuthorizationCode {
	cp := *c
	return &cp
}

func (r *authCodeRepo) Create(ctx context.Context, input repository.CreateAuthCodeInput) (*repository.AuthorizationCode, error) {
	c := &repository.AuthorizationCode{
		ID:              uuid.NewString(),
		CodeHash:        input.CodeHash,
		ClientID:        input.ClientID,
		TenantID:        input.TenantID,
		UserID:          input.UserID,
		UserEmail:       input.UserEmail,
		UserRole:        input.UserRole,
		RedirectURI:     input.RedirectURI,
		State:           strPtr(input.State),
		Scope:           strPtr(input.Scope),
		CodeChallenge:   strPtr(input.CodeChallenge),
		ChallengeMethod: strPtr(input.ChallengeMethod),
		ProfileJSON:     input.ProfileJSON,
		ExpiresAt:       input.ExpiresAt,
		CreatedAt:       time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byHash[c.CodeHash]; ok {
		return nil, repository.ErrConflict
	}
	r.byHash[c.CodeHash] = c
	return cloneCode(c), nil
}

// Consume es find-and-mark bajo el mismo lock: dos llamadas concurrentes con
// el mismo hash producen exactamente un éxito.
func (r *authCodeRepo) Consume(ctx context.Context, codeHash string, now time.Time) (*repository.AuthorizationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byHash[codeHash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !c.Valid(now) {
		return nil, repository.ErrCodeConsumed
	}
	used := now
	c.UsedAt = &used
	return cloneCode(c), nil
}

func (r *authCodeRepo) DeleteExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for h, c := range r.byHash {
		if !c.Valid(now) {
			delete(r.byHash, h)
			n++
		}
	}
	return n, nil
}

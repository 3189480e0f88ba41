package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// blockedIPRepo implementa repository.BlockedIPRepository sobre un slice.
type blockedIPRepo struct {
	mu     sync.Mutex
	blocks []*repository.BlockedIP
}

// NewBlockedIPRepo crea un registro de IPs bloqueadas en memoria.
func NewBlockedIPRepo() repository.BlockedIPRepository {
	return &blockedIPRepo{}
}

func cloneBlock(b *repository.BlockedIP) *repository.BlockedIP {
	cp := *b
	return &cp
}

func sameScope(b *repository.BlockedIP, tenantID string) bool {
	if tenantID == "" {
		return b.IsGlobal
	}
	return b.TenantID != nil && *b.TenantID == tenantID
}

func (r *blockedIPRepo) FindActive(ctx context.Context, ip, tenantID string, now time.Time) (*repository.BlockedIP, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var tenantHit *repository.BlockedIP
	for _, b := range r.blocks {
		if b.IPAddress != ip || !b.ActiveNow(now) {
			continue
		}
		// Un bloqueo global pisa cualquier scope.
		if b.IsGlobal {
			return cloneBlock(b), nil
		}
		if tenantID != "" && b.TenantID != nil && *b.TenantID == tenantID {
			tenantHit = b
		}
	}
	if tenantHit != nil {
		return cloneBlock(tenantHit), nil
	}
	return nil, repository.ErrNotFound
}

func (r *blockedIPRepo) Upsert(ctx context.Context, input repository.BlockIPInput) (*repository.BlockedIP, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	// Merge sobre el bloqueo activo existente del mismo (ip, scope).
	for _, b := range r.blocks {
		if b.IPAddress != input.IPAddress || !b.ActiveNow(now) || !sameScope(b, input.TenantID) {
			continue
		}
		b.AttemptCount++
		b.Reason = input.Reason
		b.Description = strPtr(input.Description)
		b.ExpiresAt = input.ExpiresAt
		return cloneBlock(b), nil
	}

	b := &repository.BlockedIP{
		ID:           uuid.NewString(),
		IPAddress:    input.IPAddress,
		TenantID:     strPtr(input.TenantID),
		IsGlobal:     input.TenantID == "",
		Reason:       input.Reason,
		Description:  strPtr(input.Description),
		AttemptCount: 1,
		BlockedAt:    now,
		BlockedBy:    input.BlockedBy,
		ExpiresAt:    input.ExpiresAt,
		IsActive:     true,
	}
	r.blocks = append(r.blocks, b)
	return cloneBlock(b), nil
}

func (r *blockedIPRepo) Deactivate(ctx context.Context, ip, tenantID, unblockedBy string) error {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.blocks {
		if b.IPAddress == ip && b.IsActive && sameScope(b, tenantID) {
			b.IsActive = false
			b.UnblockedAt = &now
			b.UnblockedBy = strPtr(unblockedBy)
			return nil
		}
	}
	// No-op si no había bloqueo activo.
	return nil
}

func (r *blockedIPRepo) List(ctx context.Context, filter repository.ListBlockedIPsFilter) ([]repository.BlockedIP, int, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []repository.BlockedIP
	for _, b := range r.blocks {
		if filter.TenantID != nil {
			if !sameScope(b, *filter.TenantID) {
				continue
			}
		}
		if filter.OnlyActive && !b.ActiveNow(now) {
			continue
		}
		out = append(out, *cloneBlock(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockedAt.After(out[j].BlockedAt) })

	total := len(out)
	page, size := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return []repository.BlockedIP{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

func (r *blockedIPRepo) DeactivateExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.blocks {
		if b.IsActive && b.ExpiresAt != nil && !now.Before(*b.ExpiresAt) {
			b.IsActive = false
			b.UnblockedAt = &now
			b.UnblockedBy = strPtr("system")
			n++
		}
	}
	return n, nil
}

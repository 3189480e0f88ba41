package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// securityConfigRepo implementa repository.SecurityConfigRepository.
type securityConfigRepo struct {
	mu       sync.RWMutex
	byTenant map[string]*repository.TenantSecurityConfig
}

// NewSecurityConfigRepo crea un repositorio de políticas en memoria.
func NewSecurityConfigRepo() repository.SecurityConfigRepository {
	return &securityConfigRepo{byTenant: make(map[string]*repository.TenantSecurityConfig)}
}

func cloneConfig(c *repository.TenantSecurityConfig) *repository.TenantSecurityConfig {
	cp := *c
	cp.IPAllowList = append([]string(nil), c.IPAllowList...)
	cp.IPDenyList = append([]string(nil), c.IPDenyList...)
	return &cp
}

func (r *securityConfigRepo) Get(ctx context.Context, tenantID string) (*repository.TenantSecurityConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byTenant[tenantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneConfig(c), nil
}

func (r *securityConfigRepo) Create(ctx context.Context, cfg *repository.TenantSecurityConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byTenant[cfg.TenantID]; ok {
		return repository.ErrConflict
	}
	r.byTenant[cfg.TenantID] = cloneConfig(cfg)
	return nil
}

func (r *securityConfigRepo) Update(ctx context.Context, tenantID string, patch repository.UpdateSecurityConfigInput) (*repository.TenantSecurityConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byTenant[tenantID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.MaxSessionsPerUser != nil {
		c.MaxSessionsPerUser = *patch.MaxSessionsPerUser
	}
	if patch.SessionTimeoutHours != nil {
		c.SessionTimeoutHours = *patch.SessionTimeoutHours
	}
	if patch.MaxLoginAttempts != nil {
		c.MaxLoginAttempts = *patch.MaxLoginAttempts
	}
	if patch.LockoutMinutes != nil {
		c.LockoutMinutes = *patch.LockoutMinutes
	}
	if patch.EnableProgressiveDelay != nil {
		c.EnableProgressiveDelay = *patch.EnableProgressiveDelay
	}
	if patch.PasswordExpiryDays != nil {
		c.PasswordExpiryDays = *patch.PasswordExpiryDays
	}
	if patch.NotifyOnLockout != nil {
		c.NotifyOnLockout = *patch.NotifyOnLockout
	}
	if patch.NotifyOnNewDevice != nil {
		c.NotifyOnNewDevice = *patch.NotifyOnNewDevice
	}
	if patch.IPAllowList != nil {
		c.IPAllowList = append([]string(nil), patch.IPAllowList...)
	}
	if patch.IPDenyList != nil {
		c.IPDenyList = append([]string(nil), patch.IPDenyList...)
	}
	c.UpdatedAt = time.Now().UTC()
	return cloneConfig(c), nil
}

package sso

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/vincsso/internal/cache"
	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/observability/logger"
)

// policyCacheTTL acota la ventana de staleness de la política cacheada.
const policyCacheTTL = 60 * time.Second

// PolicyStore resuelve la política de seguridad por tenant con creación
// lazy: el primer acceso de un tenant sintetiza y persiste los defaults.
type PolicyStore struct {
	repo  repository.SecurityConfigRepository
	cache cache.Client
	sf    singleflight.Group
}

// NewPolicyStore crea el store de políticas.
func NewPolicyStore(repo repository.SecurityConfigRepository, c cache.Client) *PolicyStore {
	return &PolicyStore{repo: repo, cache: c}
}

func policyKey(tenantID string) string {
	return "secpolicy:" + tenantID
}

// Get retorna la política del tenant, creándola con defaults si no existe.
// El singleflight colapsa lecturas concurrentes del mismo tenant en una
// sola pasada por el repo.
func (s *PolicyStore) Get(ctx context.Context, tenantID string) (*repository.TenantSecurityConfig, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, policyKey(tenantID)); err == nil {
			var cfg repository.TenantSecurityConfig
			if err := json.Unmarshal([]byte(raw), &cfg); err == nil {
				return &cfg, nil
			}
			// Entrada corrupta: se pisa en el próximo Set.
		}
	}

	v, err, _ := s.sf.Do(tenantID, func() (any, error) {
		return s.load(ctx, tenantID)
	})
	if err != nil {
		return nil, err
	}
	cfg := v.(*repository.TenantSecurityConfig)
	s.cacheSet(ctx, tenantID, cfg)
	return cfg, nil
}

func (s *PolicyStore) load(ctx context.Context, tenantID string) (*repository.TenantSecurityConfig, error) {
	cfg, err := s.repo.Get(ctx, tenantID)
	if err == nil {
		return cfg, nil
	}
	if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("get security config: %w", err)
	}

	// Creación lazy con defaults. Si perdemos la carrera contra otro
	// nodo, nos quedamos con la fila que ganó.
	cfg = repository.DefaultSecurityConfig(tenantID)
	if err := s.repo.Create(ctx, cfg); err != nil {
		if repository.IsConflict(err) {
			return s.repo.Get(ctx, tenantID)
		}
		return nil, fmt.Errorf("create default security config: %w", err)
	}
	logger.Named("sso.policy").Info("security policy created with defaults",
		logger.TenantID(tenantID))
	return cfg, nil
}

// Update aplica el patch del admin e invalida el cache del tenant.
func (s *PolicyStore) Update(ctx context.Context, tenantID string, patch repository.UpdateSecurityConfigInput) (*repository.TenantSecurityConfig, error) {
	// Garantizar que exista (creación lazy) antes de patchear.
	if _, err := s.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	cfg, err := s.repo.Update(ctx, tenantID, patch)
	if err != nil {
		return nil, fmt.Errorf("update security config: %w", err)
	}
	if s.cache != nil {
		_ = s.cache.Delete(ctx, policyKey(tenantID))
	}
	s.cacheSet(ctx, tenantID, cfg)
	return cfg, nil
}

func (s *PolicyStore) cacheSet(ctx context.Context, tenantID string, cfg *repository.TenantSecurityConfig) {
	if s.cache == nil {
		return
	}
	if raw, err := json.Marshal(cfg); err == nil {
		_ = s.cache.Set(ctx, policyKey(tenantID), string(raw), policyCacheTTL)
	}
}

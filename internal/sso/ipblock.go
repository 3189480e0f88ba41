package sso

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/metrics"
	"github.com/dropDatabas3/vincsso/internal/observability/logger"
)

// IPBlockRegistry resuelve bloqueos de IP globales y por tenant, más las
// listas allow/deny de la política del tenant.
type IPBlockRegistry struct {
	repo   repository.BlockedIPRepository
	policy *PolicyStore
}

// NewIPBlockRegistry crea el registro.
func NewIPBlockRegistry(repo repository.BlockedIPRepository, policy *PolicyStore) *IPBlockRegistry {
	return &IPBlockRegistry{repo: repo, policy: policy}
}

// IsBlocked reporta si la IP está bloqueada para el tenant. Orden de
// evaluación: allow list del tenant (corta todo), deny list del tenant,
// registro de bloqueos (global pisa tenant). Se chequea ANTES de tocar
// el ledger.
func (r *IPBlockRegistry) IsBlocked(ctx context.Context, ip, tenantID string) (bool, *repository.BlockedIP, error) {
	if tenantID != "" && r.policy != nil {
		cfg, err := r.policy.Get(ctx, tenantID)
		if err == nil {
			if matchIPList(ip, cfg.IPAllowList) {
				return false, nil, nil
			}
			if matchIPList(ip, cfg.IPDenyList) {
				metrics.IPBlockHits.Inc()
				return true, nil, nil
			}
		}
	}

	b, err := r.repo.FindActive(ctx, ip, tenantID, time.Now().UTC())
	if repository.IsNotFound(err) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("find ip block: %w", err)
	}
	metrics.IPBlockHits.Inc()
	return true, b, nil
}

// Block crea o mergea un bloqueo. tenantID vacío = bloqueo global.
func (r *IPBlockRegistry) Block(ctx context.Context, input repository.BlockIPInput) (*repository.BlockedIP, error) {
	if net.ParseIP(input.IPAddress) == nil {
		return nil, repository.ErrInvalidInput
	}
	b, err := r.repo.Upsert(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("block ip: %w", err)
	}
	logger.Named("sso.ipblock").Warn("ip blocked",
		logger.IP(input.IPAddress),
		logger.TenantID(input.TenantID),
		logger.Reason(string(input.Reason)),
		logger.Int("attempt_count", b.AttemptCount),
	)
	return b, nil
}

// Unblock desactiva el bloqueo activo. Idempotente.
func (r *IPBlockRegistry) Unblock(ctx context.Context, ip, tenantID, unblockedBy string) error {
	if err := r.repo.Deactivate(ctx, ip, tenantID, unblockedBy); err != nil {
		return fmt.Errorf("unblock ip: %w", err)
	}
	return nil
}

// List retorna bloqueos para la superficie admin.
func (r *IPBlockRegistry) List(ctx context.Context, filter repository.ListBlockedIPsFilter) ([]repository.BlockedIP, int, error) {
	return r.repo.List(ctx, filter)
}

// DeactivateExpired apaga bloqueos vencidos (lo llama el sweeper).
func (r *IPBlockRegistry) DeactivateExpired(ctx context.Context) (int, error) {
	return r.repo.DeactivateExpired(ctx)
}

// matchIPList matchea IP exacta o CIDR.
func matchIPList(ip string, list []string) bool {
	if len(list) == 0 {
		return false
	}
	parsed := net.ParseIP(ip)
	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			if _, cidr, err := net.ParseCIDR(entry); err == nil && parsed != nil && cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if entry == ip {
			return true
		}
	}
	return false
}

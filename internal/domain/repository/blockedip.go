package repository

import (
	"context"
	"time"
)

// BlockReason enumera las razones de bloqueo de una IP.
type BlockReason string

const (
	BlockReasonBruteForce BlockReason = "brute_force"
	BlockReasonManual     BlockReason = "manual"
	BlockReasonAbuse      BlockReason = "abuse"
	BlockReasonSuspicious BlockReason = "suspicious_activity"
)

// BlockedIP es un bloqueo de IP, global o scoped a un tenant.
// Invariante: a lo sumo UN bloqueo activo por (ip, tenant) y a lo sumo un
// bloqueo global activo por ip; re-bloquear mergea sobre el registro activo.
type BlockedIP struct {
	ID           string
	IPAddress    string
	TenantID     *string // nil cuando IsGlobal
	IsGlobal     bool
	Reason       BlockReason
	Description  *string
	AttemptCount int
	BlockedAt    time.Time
	BlockedBy    string
	ExpiresAt    *time.Time // nil = permanente
	IsActive     bool
	UnblockedAt  *time.Time
	UnblockedBy  *string
}

// ActiveNow reporta si el bloqueo sigue vigente al instante dado.
func (b *BlockedIP) ActiveNow(now time.Time) bool {
	if !b.IsActive {
		return false
	}
	if b.ExpiresAt != nil && !now.Before(*b.ExpiresAt) {
		return false
	}
	return true
}

// BlockIPInput contiene los datos para bloquear una IP.
type BlockIPInput struct {
	IPAddress   string
	TenantID    string // vacío = bloqueo global
	Reason      BlockReason
	Description string
	BlockedBy   string
	ExpiresAt   *time.Time
}

// ListBlockedIPsFilter define filtros para listar bloqueos.
type ListBlockedIPsFilter struct {
	TenantID   *string
	OnlyActive bool
	Page       int
	PageSize   int
}

// BlockedIPRepository define operaciones sobre el registro de IPs bloqueadas.
type BlockedIPRepository interface {
	// FindActive busca el bloqueo activo (no expirado) que aplique a la IP:
	// global, o del tenant si tenantID no es vacío. Retorna ErrNotFound
	// si ninguno aplica.
	FindActive(ctx context.Context, ip, tenantID string, now time.Time) (*BlockedIP, error)

	// Upsert crea el bloqueo o, si ya existe uno activo para el mismo
	// (ip, tenant), incrementa attempt_count y pisa reason/description/
	// expiración sobre el registro existente (nunca duplica filas).
	Upsert(ctx context.Context, input BlockIPInput) (*BlockedIP, error)

	// Deactivate transiciona el único registro activo a inactivo.
	// No-op (sin error) si no hay registro activo.
	Deactivate(ctx context.Context, ip, tenantID, unblockedBy string) error

	// List retorna bloqueos con filtros y paginación.
	List(ctx context.Context, filter ListBlockedIPsFilter) ([]BlockedIP, int, error)

	// DeactivateExpired apaga bloqueos cuya expiración ya pasó.
	DeactivateExpired(ctx context.Context) (int, error)
}

package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// blockedIPRepo implementa repository.BlockedIPRepository.
type blockedIPRepo struct {
	pool *pgxpool.Pool
}

const blockedIPCols = `
	id, ip_address, tenant_id, is_global, reason, description, attempt_count,
	blocked_at, blocked_by, expires_at, is_active, unblocked_at, unblocked_by`

func scanBlockedIP(row pgx.Row) (*repository.BlockedIP, error) {
	var b repository.BlockedIP
	var ip string
	var reason string
	err := row.Scan(
		&b.ID, &ip, &b.TenantID, &b.IsGlobal, &reason, &b.Description, &b.AttemptCount,
		&b.BlockedAt, &b.BlockedBy, &b.ExpiresAt, &b.IsActive, &b.UnblockedAt, &b.UnblockedBy,
	)
	if err != nil {
		return nil, err
	}
	b.IPAddress = ip
	b.Reason = repository.BlockReason(reason)
	return &b, nil
}

// FindActive: un bloqueo global pisa cualquier scope; si no hay global
// se busca el del tenant.
func (r *blockedIPRepo) FindActive(ctx context.Context, ip, tenantID string, now time.Time) (*repository.BlockedIP, error) {
	query := `
		SELECT ` + blockedIPCols + `
		FROM blocked_ips
		WHERE ip_address = $1
		  AND is_active
		  AND (expires_at IS NULL OR expires_at > $2)
		  AND (is_global OR tenant_id = $3)
		ORDER BY is_global DESC
		LIMIT 1
	`
	b, err := scanBlockedIP(r.pool.QueryRow(ctx, query, ip, now, nullIfEmpty(tenantID)))
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active ip block: %w", err)
	}
	return b, nil
}

// Upsert mergea sobre el bloqueo activo del mismo (ip, scope) si existe;
// si no, inserta. Dos pasos bajo el unique index parcial de la tabla:
// la carrera la resuelve el índice, no la aplicación.
func (r *blockedIPRepo) Upsert(ctx context.Context, input repository.BlockIPInput) (*repository.BlockedIP, error) {
	isGlobal := input.TenantID == ""

	updQuery := `
		UPDATE blocked_ips
		SET attempt_count = attempt_count + 1,
		    reason = $1, description = $2, expires_at = $3
		WHERE ip_address = $4 AND is_active
		  AND (expires_at IS NULL OR expires_at > NOW())
		  AND ((is_global AND $5) OR tenant_id = $6)
		RETURNING ` + blockedIPCols

	b, err := scanBlockedIP(r.pool.QueryRow(ctx, updQuery,
		string(input.Reason), nullIfEmpty(input.Description), input.ExpiresAt,
		input.IPAddress, isGlobal, nullIfEmpty(input.TenantID),
	))
	if err == nil {
		return b, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("merge ip block: %w", err)
	}

	insQuery := `
		INSERT INTO blocked_ips (
			ip_address, tenant_id, is_global, reason, description, attempt_count,
			blocked_at, blocked_by, expires_at, is_active
		) VALUES ($1, $2, $3, $4, $5, 1, NOW(), $6, $7, TRUE)
		RETURNING ` + blockedIPCols

	b, err = scanBlockedIP(r.pool.QueryRow(ctx, insQuery,
		input.IPAddress, nullIfEmpty(input.TenantID), isGlobal,
		string(input.Reason), nullIfEmpty(input.Description), input.BlockedBy, input.ExpiresAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			// Perdimos la carrera contra otro Upsert: reintentar el merge.
			b, err = scanBlockedIP(r.pool.QueryRow(ctx, updQuery,
				string(input.Reason), nullIfEmpty(input.Description), input.ExpiresAt,
				input.IPAddress, isGlobal, nullIfEmpty(input.TenantID),
			))
			if err != nil {
				return nil, fmt.Errorf("merge ip block after race: %w", err)
			}
			return b, nil
		}
		return nil, fmt.Errorf("insert ip block: %w", err)
	}
	return b, nil
}

// Deactivate es no-op sin error si no hay bloqueo activo.
func (r *blockedIPRepo) Deactivate(ctx context.Context, ip, tenantID, unblockedBy string) error {
	query := `
		UPDATE blocked_ips
		SET is_active = FALSE, unblocked_at = NOW(), unblocked_by = $1
		WHERE ip_address = $2 AND is_active
		  AND ((is_global AND $3) OR tenant_id = $4)
	`
	_, err := r.pool.Exec(ctx, query, unblockedBy, ip, tenantID == "", nullIfEmpty(tenantID))
	if err != nil {
		return fmt.Errorf("deactivate ip block: %w", err)
	}
	return nil
}

func (r *blockedIPRepo) List(ctx context.Context, filter repository.ListBlockedIPsFilter) ([]repository.BlockedIP, int, error) {
	where := []string{"1=1"}
	args := []any{}
	argIdx := 1

	if filter.TenantID != nil {
		if *filter.TenantID == "" {
			where = append(where, "is_global")
		} else {
			where = append(where, fmt.Sprintf("tenant_id = $%d", argIdx))
			args = append(args, *filter.TenantID)
			argIdx++
		}
	}
	if filter.OnlyActive {
		where = append(where, "is_active AND (expires_at IS NULL OR expires_at > NOW())")
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM blocked_ips WHERE %s", whereClause)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ip blocks: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	args = append(args, pageSize, (page-1)*pageSize)

	query := fmt.Sprintf(`
		SELECT %s FROM blocked_ips
		WHERE %s
		ORDER BY blocked_at DESC
		LIMIT $%d OFFSET $%d
	`, blockedIPCols, whereClause, argIdx, argIdx+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ip blocks: %w", err)
	}
	defer rows.Close()

	var blocks []repository.BlockedIP
	for rows.Next() {
		b, err := scanBlockedIP(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan ip block: %w", err)
		}
		blocks = append(blocks, *b)
	}
	return blocks, total, rows.Err()
}

func (r *blockedIPRepo) DeactivateExpired(ctx context.Context) (int, error) {
	query := `
		UPDATE blocked_ips
		SET is_active = FALSE, unblocked_at = NOW(), unblocked_by = 'system'
		WHERE is_active AND expires_at IS NOT NULL AND expires_at <= NOW()
	`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired ip blocks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// securityConfigRepo implementa repository.SecurityConfigRepository.
type securityConfigRepo struct {
	pool *pgxpool.Pool
}

const securityConfigCols = `
	tenant_id, max_sessions_per_user, session_timeout_hours,
	max_login_attempts, lockout_minutes, enable_progressive_delay,
	password_expiry_days, notify_on_lockout, notify_on_new_device,
	ip_allow_list, ip_deny_list, created_at, updated_at`

func scanSecurityConfig(row pgx.Row) (*repository.TenantSecurityConfig, error) {
	var c repository.TenantSecurityConfig
	err := row.Scan(
		&c.TenantID, &c.MaxSessionsPerUser, &c.SessionTimeoutHours,
		&c.MaxLoginAttempts, &c.LockoutMinutes, &c.EnableProgressiveDelay,
		&c.PasswordExpiryDays, &c.NotifyOnLockout, &c.NotifyOnNewDevice,
		&c.IPAllowList, &c.IPDenyList, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *securityConfigRepo) Get(ctx context.Context, tenantID string) (*repository.TenantSecurityConfig, error) {
	query := `SELECT ` + securityConfigCols + ` FROM tenant_security_config WHERE tenant_id = $1`
	c, err := scanSecurityConfig(r.pool.QueryRow(ctx, query, tenantID))
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get security config: %w", err)
	}
	return c, nil
}

func (r *securityConfigRepo) Create(ctx context.Context, cfg *repository.TenantSecurityConfig) error {
	query := `
		INSERT INTO tenant_security_config (
			tenant_id, max_sessions_per_user, session_timeout_hours,
			max_login_attempts, lockout_minutes, enable_progressive_delay,
			password_expiry_days, notify_on_lockout, notify_on_new_device,
			ip_allow_list, ip_deny_list, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`
	_, err := r.pool.Exec(ctx, query,
		cfg.TenantID, cfg.MaxSessionsPerUser, cfg.SessionTimeoutHours,
		cfg.MaxLoginAttempts, cfg.LockoutMinutes, cfg.EnableProgressiveDelay,
		cfg.PasswordExpiryDays, cfg.NotifyOnLockout, cfg.NotifyOnNewDevice,
		cfg.IPAllowList, cfg.IPDenyList,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("create security config: %w", err)
	}
	return nil
}

func (r *securityConfigRepo) Update(ctx context.Context, tenantID string, patch repository.UpdateSecurityConfigInput) (*repository.TenantSecurityConfig, error) {
	// COALESCE por campo: los punteros nil viajan como NULL y dejan el
	// valor existente.
	query := `
		UPDATE tenant_security_config SET
			max_sessions_per_user    = COALESCE($2, max_sessions_per_user),
			session_timeout_hours    = COALESCE($3, session_timeout_hours),
			max_login_attempts       = COALESCE($4, max_login_attempts),
			lockout_minutes          = COALESCE($5, lockout_minutes),
			enable_progressive_delay = COALESCE($6, enable_progressive_delay),
			password_expiry_days     = COALESCE($7, password_expiry_days),
			notify_on_lockout        = COALESCE($8, notify_on_lockout),
			notify_on_new_device     = COALESCE($9, notify_on_new_device),
			ip_allow_list            = COALESCE($10, ip_allow_list),
			ip_deny_list             = COALESCE($11, ip_deny_list),
			updated_at               = NOW()
		WHERE tenant_id = $1
		RETURNING ` + securityConfigCols

	c, err := scanSecurityConfig(r.pool.QueryRow(ctx, query,
		tenantID,
		patch.MaxSessionsPerUser, patch.SessionTimeoutHours,
		patch.MaxLoginAttempts, patch.LockoutMinutes, patch.EnableProgressiveDelay,
		patch.PasswordExpiryDays, patch.NotifyOnLockout, patch.NotifyOnNewDevice,
		patch.IPAllowList, patch.IPDenyList,
	))
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update security config: %w", err)
	}
	return c, nil
}

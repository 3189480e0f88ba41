package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// loginAttemptRepo implementa repository.LoginAttemptRepository.
// El ledger es append-only: solo INSERT, SELECT y el purge del sweep.
type loginAttemptRepo struct {
	pool *pgxpool.Pool
}

func (r *loginAttemptRepo) Record(ctx context.Context, input repository.RecordAttemptInput) (*repository.LoginAttempt, error) {
	query := `
		INSERT INTO login_attempts (
			tenant_id, email, ip_address, success, failure_reason, client_id,
			device_type, browser, os, user_agent, country, city, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, NOW()
		)
		RETURNING id, created_at
	`

	var reason *string
	if !input.Success && input.FailureReason != "" {
		s := string(input.FailureReason)
		reason = &s
	}

	a := &repository.LoginAttempt{
		TenantID:   nullIfEmpty(input.TenantID),
		Email:      input.Email,
		IPAddress:  input.IPAddress,
		Success:    input.Success,
		ClientID:   nullIfEmpty(input.ClientID),
		DeviceType: nullIfEmpty(input.DeviceType),
		Browser:    nullIfEmpty(input.Browser),
		OS:         nullIfEmpty(input.OS),
		UserAgent:  nullIfEmpty(input.UserAgent),
		Country:    nullIfEmpty(input.Country),
		City:       nullIfEmpty(input.City),
	}
	if reason != nil {
		fr := repository.FailureReason(*reason)
		a.FailureReason = &fr
	}

	err := r.pool.QueryRow(ctx, query,
		nullIfEmpty(input.TenantID), input.Email, input.IPAddress, input.Success, reason,
		nullIfEmpty(input.ClientID), nullIfEmpty(input.DeviceType), nullIfEmpty(input.Browser),
		nullIfEmpty(input.OS), nullIfEmpty(input.UserAgent), nullIfEmpty(input.Country),
		nullIfEmpty(input.City),
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("record login attempt: %w", err)
	}
	return a, nil
}

func (r *loginAttemptRepo) CountSince(ctx context.Context, tenantID, email, ip string, since time.Time) (repository.RiskCounts, error) {
	// Unión email OR ip: atrapa IPs rotadas contra un email y una IP
	// contra muchos emails.
	var counts repository.RiskCounts
	var query string
	var args []any
	if tenantID == "" {
		query = `
			SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT success)
			FROM login_attempts
			WHERE tenant_id IS NULL AND created_at >= $1 AND (email = $2 OR ip_address = $3)
		`
		args = []any{since, email, ip}
	} else {
		query = `
			SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT success)
			FROM login_attempts
			WHERE tenant_id = $1 AND created_at >= $2 AND (email = $3 OR ip_address = $4)
		`
		args = []any{tenantID, since, email, ip}
	}
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&counts.Total, &counts.Failed); err != nil {
		return repository.RiskCounts{}, fmt.Errorf("count attempts: %w", err)
	}
	return counts, nil
}

func (r *loginAttemptRepo) ConsecutiveFailures(ctx context.Context, tenantID, email string, since time.Time) (int, error) {
	// Recorre del más nuevo al más viejo y corta en el primer éxito.
	var query string
	var args []any
	if tenantID == "" {
		query = `
			SELECT success FROM login_attempts
			WHERE tenant_id IS NULL AND email = $1 AND created_at >= $2
			ORDER BY created_at DESC
		`
		args = []any{email, since}
	} else {
		query = `
			SELECT success FROM login_attempts
			WHERE tenant_id = $1 AND email = $2 AND created_at >= $3
			ORDER BY created_at DESC
		`
		args = []any{tenantID, email, since}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("consecutive failures: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var success bool
		if err := rows.Scan(&success); err != nil {
			return 0, err
		}
		if success {
			break
		}
		n++
	}
	return n, rows.Err()
}

func (r *loginAttemptRepo) LastFailure(ctx context.Context, tenantID, email, ip string, since time.Time) (time.Time, error) {
	var query string
	var args []any
	if tenantID == "" {
		query = `
			SELECT created_at FROM login_attempts
			WHERE tenant_id IS NULL AND NOT success AND created_at >= $1
			  AND (email = $2 OR ip_address = $3)
			ORDER BY created_at DESC LIMIT 1
		`
		args = []any{since, email, ip}
	} else {
		query = `
			SELECT created_at FROM login_attempts
			WHERE tenant_id = $1 AND NOT success AND created_at >= $2
			  AND (email = $3 OR ip_address = $4)
			ORDER BY created_at DESC LIMIT 1
		`
		args = []any{tenantID, since, email, ip}
	}

	var last time.Time
	err := r.pool.QueryRow(ctx, query, args...).Scan(&last)
	if err == pgx.ErrNoRows {
		return time.Time{}, repository.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last failure: %w", err)
	}
	return last, nil
}

func (r *loginAttemptRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM login_attempts WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge login attempts: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

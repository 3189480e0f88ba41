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

// sessionRepo implementa repository.SessionRepository.
type sessionRepo struct {
	pool *pgxpool.Pool
}

const sessionCols = `
	id, tenant_id, user_id, user_email, user_role, company_name, profile_json,
	client_app, client_id, storefront_id, session_id_hash,
	ip_address, user_agent, device_type, browser, os, device_fingerprint,
	country_code, country, city,
	refresh_token_hash, access_token_id,
	created_at, last_activity, expires_at, revoked_at, revoked_by, revoke_reason`

func scanSession(row pgx.Row) (*repository.Session, error) {
	var s repository.Session
	var ip *string
	err := row.Scan(
		&s.ID, &s.TenantID, &s.UserID, &s.UserEmail, &s.UserRole, &s.CompanyName, &s.ProfileJSON,
		&s.ClientApp, &s.ClientID, &s.StorefrontID, &s.SessionIDHash,
		&ip, &s.UserAgent, &s.DeviceType, &s.Browser, &s.OS, &s.DeviceFingerprint,
		&s.CountryCode, &s.Country, &s.City,
		&s.RefreshTokenHash, &s.AccessTokenID,
		&s.CreatedAt, &s.LastActivity, &s.ExpiresAt, &s.RevokedAt, &s.RevokedBy, &s.RevokeReason,
	)
	if err != nil {
		return nil, err
	}
	s.IPAddress = ip
	return &s, nil
}

func (r *sessionRepo) Create(ctx context.Context, input repository.CreateSessionInput) (*repository.Session, error) {
	query := `
		INSERT INTO sessions (
			tenant_id, user_id, user_email, user_role, company_name, profile_json,
			client_app, client_id, storefront_id, session_id_hash,
			ip_address, user_agent, device_type, browser, os, device_fingerprint,
			country_code, country, city,
			refresh_token_hash, access_token_id,
			expires_at, created_at, last_activity
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $19,
			$20, $21,
			$22, NOW(), NOW()
		)
		RETURNING ` + sessionCols

	row := r.pool.QueryRow(ctx, query,
		input.TenantID, input.UserID, input.UserEmail, input.UserRole,
		nullIfEmpty(input.CompanyName), input.ProfileJSON,
		string(input.ClientApp), input.ClientID, nullIfEmpty(input.StorefrontID), input.SessionIDHash,
		nullIfEmpty(input.IPAddress), nullIfEmpty(input.UserAgent),
		nullIfEmpty(input.DeviceType), nullIfEmpty(input.Browser), nullIfEmpty(input.OS),
		nullIfEmpty(input.DeviceFingerprint),
		nullIfEmpty(input.CountryCode), nullIfEmpty(input.Country), nullIfEmpty(input.City),
		input.RefreshTokenHash, nullIfEmpty(input.AccessTokenID),
		input.ExpiresAt,
	)
	s, err := scanSession(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

func (r *sessionRepo) GetByIDHash(ctx context.Context, sessionIDHash string) (*repository.Session, error) {
	query := `SELECT ` + sessionCols + ` FROM sessions WHERE session_id_hash = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, query, sessionIDHash))
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *sessionRepo) GetByRefreshHash(ctx context.Context, refreshHash string) (*repository.Session, error) {
	query := `SELECT ` + sessionCols + ` FROM sessions WHERE refresh_token_hash = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, query, refreshHash))
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session by refresh: %w", err)
	}
	return s, nil
}

func (r *sessionRepo) UpdateActivity(ctx context.Context, sessionIDHash string, lastActivity time.Time) error {
	query := `UPDATE sessions SET last_activity = $1 WHERE session_id_hash = $2`
	_, err := r.pool.Exec(ctx, query, lastActivity, sessionIDHash)
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return nil
}

// RotateRefresh pisa el refresh hash y el JTI solo si la sesión está viva.
func (r *sessionRepo) RotateRefresh(ctx context.Context, sessionIDHash, newRefreshHash, accessTokenID string) error {
	query := `
		UPDATE sessions
		SET refresh_token_hash = $1, access_token_id = $2, last_activity = NOW()
		WHERE session_id_hash = $3 AND revoked_at IS NULL AND expires_at > NOW()
	`
	tag, err := r.pool.Exec(ctx, query, newRefreshHash, nullIfEmpty(accessTokenID), sessionIDHash)
	if err != nil {
		return fmt.Errorf("rotate refresh: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) CountActiveByUser(ctx context.Context, tenantID, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM sessions
		WHERE tenant_id = $1 AND user_id = $2 AND revoked_at IS NULL AND expires_at > NOW()
	`
	var n int
	if err := r.pool.QueryRow(ctx, query, tenantID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return n, nil
}

// RevokeOldestActive revoca en UNA operación la sesión activa más vieja
// por last_activity. Es la evicción atómica del tope de sesiones.
func (r *sessionRepo) RevokeOldestActive(ctx context.Context, tenantID, userID, reason string) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW(), revoked_by = 'system', revoke_reason = $1
		WHERE id = (
			SELECT id FROM sessions
			WHERE tenant_id = $2 AND user_id = $3 AND revoked_at IS NULL AND expires_at > NOW()
			ORDER BY last_activity ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
	`
	tag, err := r.pool.Exec(ctx, query, reason, tenantID, userID)
	if err != nil {
		return fmt.Errorf("revoke oldest session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Revoke es idempotente: una sesión ya revocada no es error.
func (r *sessionRepo) Revoke(ctx context.Context, sessionIDHash, revokedBy, reason string) error {
	query := `
		UPDATE sessions
		SET revoked_at = NOW(), revoked_by = $1, revoke_reason = $2
		WHERE session_id_hash = $3 AND revoked_at IS NULL
	`
	_, err := r.pool.Exec(ctx, query, revokedBy, reason, sessionIDHash)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (r *sessionRepo) RevokeAllByUser(ctx context.Context, tenantID, userID, revokedBy, reason string) (int, error) {
	query := `
		UPDATE sessions
		SET revoked_at = NOW(), revoked_by = $1, revoke_reason = $2
		WHERE tenant_id = $3 AND user_id = $4 AND revoked_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, revokedBy, reason, tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all by user: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *sessionRepo) List(ctx context.Context, tenantID string, filter repository.ListSessionsFilter) ([]repository.Session, int, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	argIdx := 2

	if filter.UserID != nil && *filter.UserID != "" {
		where = append(where, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, *filter.UserID)
		argIdx++
	}
	if filter.ClientApp != nil {
		where = append(where, fmt.Sprintf("client_app = $%d", argIdx))
		args = append(args, string(*filter.ClientApp))
		argIdx++
	}
	if filter.DeviceType != nil && *filter.DeviceType != "" {
		where = append(where, fmt.Sprintf("device_type = $%d", argIdx))
		args = append(args, *filter.DeviceType)
		argIdx++
	}
	if filter.Status != nil && *filter.Status != "" {
		switch *filter.Status {
		case "active":
			where = append(where, "revoked_at IS NULL AND expires_at > NOW()")
		case "expired":
			where = append(where, "revoked_at IS NULL AND expires_at <= NOW()")
		case "revoked":
			where = append(where, "revoked_at IS NOT NULL")
		}
	}
	if filter.Search != nil && *filter.Search != "" {
		where = append(where, fmt.Sprintf("(ip_address::text ILIKE $%d OR city ILIKE $%d OR country ILIKE $%d OR user_email ILIKE $%d)", argIdx, argIdx, argIdx, argIdx))
		args = append(args, "%"+*filter.Search+"%")
		argIdx++
	}

	whereClause := strings.Join(where, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM sessions WHERE %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	args = append(args, pageSize, offset)

	query := fmt.Sprintf(`
		SELECT %s
		FROM sessions
		WHERE %s
		ORDER BY last_activity DESC
		LIMIT $%d OFFSET $%d
	`, sessionCols, whereClause, argIdx, argIdx+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []repository.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, total, rows.Err()
}

func (r *sessionRepo) DeleteExpired(ctx context.Context) (int, error) {
	query := `DELETE FROM sessions WHERE expires_at <= NOW() OR revoked_at IS NOT NULL`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *sessionRepo) GetStats(ctx context.Context, tenantID string) (*repository.SessionStats, error) {
	stats := &repository.SessionStats{}

	query := `
		SELECT
			COUNT(*) FILTER (WHERE revoked_at IS NULL AND expires_at > NOW()),
			COUNT(*) FILTER (WHERE created_at >= date_trunc('day', NOW()))
		FROM sessions WHERE tenant_id = $1
	`
	if err := r.pool.QueryRow(ctx, query, tenantID).Scan(&stats.TotalActive, &stats.TotalToday); err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}

	deviceQuery := `
		SELECT COALESCE(device_type, 'unknown'), COUNT(*)
		FROM sessions
		WHERE tenant_id = $1 AND revoked_at IS NULL AND expires_at > NOW()
		GROUP BY 1 ORDER BY 2 DESC
	`
	rows, err := r.pool.Query(ctx, deviceQuery, tenantID)
	if err != nil {
		return nil, fmt.Errorf("session stats by device: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dc repository.SessionDeviceCount
		if err := rows.Scan(&dc.DeviceType, &dc.Count); err != nil {
			return nil, err
		}
		stats.ByDevice = append(stats.ByDevice, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	countryQuery := `
		SELECT country, COUNT(*)
		FROM sessions
		WHERE tenant_id = $1 AND country IS NOT NULL AND revoked_at IS NULL AND expires_at > NOW()
		GROUP BY 1 ORDER BY 2 DESC LIMIT 10
	`
	crows, err := r.pool.Query(ctx, countryQuery, tenantID)
	if err != nil {
		return nil, fmt.Errorf("session stats by country: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var cc repository.SessionCountryCount
		if err := crows.Scan(&cc.Country, &cc.Count); err != nil {
			return nil, err
		}
		stats.ByCountry = append(stats.ByCountry, cc)
	}
	return stats, crows.Err()
}

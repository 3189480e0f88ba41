package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// authCodeRepo implementa repository.AuthCodeRepository.
type authCodeRepo struct {
	pool *pgxpool.Pool
}

const authCodeCols = `
	id, code_hash, client_id, tenant_id, user_id, user_email, user_role,
	redirect_uri, state, scope, code_challenge, challenge_method,
	profile_json, expires_at, used_at, created_at`

func scanAuthCode(row pgx.Row) (*repository.AuthorizationCode, error) {
	var c repository.AuthorizationCode
	err := row.Scan(
		&c.ID, &c.CodeHash, &c.ClientID, &c.TenantID, &c.UserID, &c.UserEmail, &c.UserRole,
		&c.RedirectURI, &c.State, &c.Scope, &c.CodeChallenge, &c.ChallengeMethod,
		&c.ProfileJSON, &c.ExpiresAt, &c.UsedAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *authCodeRepo) Create(ctx context.Context, input repository.CreateAuthCodeInput) (*repository.AuthorizationCode, error) {
	query := `
		INSERT INTO auth_codes (
			code_hash, client_id, tenant_id, user_id, user_email, user_role,
			redirect_uri, state, scope, code_challenge, challenge_method,
			profile_json, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, NOW()
		)
		RETURNING ` + authCodeCols

	row := r.pool.QueryRow(ctx, query,
		input.CodeHash, input.ClientID, input.TenantID, input.UserID, input.UserEmail, input.UserRole,
		input.RedirectURI, nullIfEmpty(input.State), nullIfEmpty(input.Scope),
		nullIfEmpty(input.CodeChallenge), nullIfEmpty(input.ChallengeMethod),
		input.ProfileJSON, input.ExpiresAt,
	)
	c, err := scanAuthCode(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("create auth code: %w", err)
	}
	return c, nil
}

// Consume es un UPDATE condicional con RETURNING: marca used_at y devuelve
// la fila solo si el code sigue sin usar y sin expirar. Dos exchanges
// concurrentes del mismo code producen exactamente UN éxito; el perdedor
// no matchea el WHERE y recibe ErrCodeConsumed (o ErrNotFound si el code
// nunca existió).
func (r *authCodeRepo) Consume(ctx context.Context, codeHash string, now time.Time) (*repository.AuthorizationCode, error) {
	query := `
		UPDATE auth_codes
		SET used_at = $2
		WHERE code_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING ` + authCodeCols

	c, err := scanAuthCode(r.pool.QueryRow(ctx, query, codeHash, now))
	if err == pgx.ErrNoRows {
		// Distinguir "nunca existió" de "usado/expirado".
		var exists bool
		if err2 := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM auth_codes WHERE code_hash = $1)`, codeHash,
		).Scan(&exists); err2 == nil && exists {
			return nil, repository.ErrCodeConsumed
		}
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume auth code: %w", err)
	}
	return c, nil
}

func (r *authCodeRepo) DeleteExpired(ctx context.Context) (int, error) {
	query := `DELETE FROM auth_codes WHERE expires_at <= NOW() OR used_at IS NOT NULL`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete expired auth codes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

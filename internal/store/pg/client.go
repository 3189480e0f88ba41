package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// clientRepo implementa repository.ClientRepository.
type clientRepo struct {
	pool *pgxpool.Pool
}

const clientCols = `
	id, client_id, tenant_id, name, secret_hash, redirect_uris,
	allowed_origins, app, first_party, is_active, created_at, updated_at`

func scanClient(row pgx.Row) (*repository.AuthClient, error) {
	var c repository.AuthClient
	var app string
	err := row.Scan(
		&c.ID, &c.ClientID, &c.TenantID, &c.Name, &c.SecretHash, &c.RedirectURIs,
		&c.AllowedOrigins, &app, &c.FirstParty, &c.IsActive, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.App = repository.ClientApp(app)
	return &c, nil
}

func (r *clientRepo) Create(ctx context.Context, input repository.CreateClientInput) (*repository.AuthClient, error) {
	if !repository.ValidClientID(input.ClientID) {
		return nil, repository.ErrInvalidInput
	}
	query := `
		INSERT INTO auth_clients (
			client_id, tenant_id, name, secret_hash, redirect_uris,
			allowed_origins, app, first_party, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, NOW(), NOW())
		RETURNING ` + clientCols

	c, err := scanClient(r.pool.QueryRow(ctx, query,
		input.ClientID, input.TenantID, input.Name, input.SecretHash,
		input.RedirectURIs, input.AllowedOrigins, string(input.App), input.FirstParty,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

func (r *clientRepo) GetByClientID(ctx context.Context, clientID string) (*repository.AuthClient, error) {
	query := `SELECT ` + clientCols + ` FROM auth_clients WHERE client_id = $1`
	c, err := scanClient(r.pool.QueryRow(ctx, query, clientID))
	if err == pgx.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return c, nil
}

func (r *clientRepo) List(ctx context.Context, tenantID string) ([]repository.AuthClient, error) {
	query := `SELECT ` + clientCols + ` FROM auth_clients WHERE tenant_id = $1 ORDER BY client_id`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []repository.AuthClient
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func (r *clientRepo) SetActive(ctx context.Context, clientID string, active bool) error {
	query := `UPDATE auth_clients SET is_active = $1, updated_at = NOW() WHERE client_id = $2`
	tag, err := r.pool.Exec(ctx, query, active, clientID)
	if err != nil {
		return fmt.Errorf("set client active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

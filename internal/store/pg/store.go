// Package pg implementa los repositorios del dominio sobre PostgreSQL
// usando pgxpool. Las operaciones de consumo de codes y evicción de
// sesiones son UPDATEs condicionales: una sola operación, sin
// read-then-write.
package pg

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/vincsso/internal/domain/repository"
)

// PoolConfig son los parámetros del pool de conexiones.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
}

// Store agrupa los repositorios PostgreSQL sobre un pool compartido.
type Store struct {
	pool *pgxpool.Pool

	Sessions       repository.SessionRepository
	AuthCodes      repository.AuthCodeRepository
	LoginAttempts  repository.LoginAttemptRepository
	BlockedIPs     repository.BlockedIPRepository
	SecurityConfig repository.SecurityConfigRepository
	Clients        repository.ClientRepository
}

// Open crea el pool, hace ping (fail fast) y arma los repositorios.
func Open(ctx context.Context, dsn string, pc PoolConfig) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgxpool config: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = int32(pc.MaxConns)
	}
	if pc.MinConns > 0 {
		cfg.MinConns = int32(pc.MinConns)
	}
	if pc.ConnMaxLifetime > 0 {
		cfg.MaxConnLifetime = pc.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgxpool ping: %w", err)
	}

	return &Store{
		pool:           pool,
		Sessions:       &sessionRepo{pool: pool},
		AuthCodes:      &authCodeRepo{pool: pool},
		LoginAttempts:  &loginAttemptRepo{pool: pool},
		BlockedIPs:     &blockedIPRepo{pool: pool},
		SecurityConfig: &securityConfigRepo{pool: pool},
		Clients:        &clientRepo{pool: pool},
	}, nil
}

// Ping verifica la conexión.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// MigrateUp aplica las migraciones pendientes sobre el pool del Store.
func (s *Store) MigrateUp(ctx context.Context, migrationsFS embed.FS) error {
	return Migrate(ctx, s.pool, migrationsFS)
}

// Close cierra el pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ─── helpers ───

// nullIfEmpty mapea "" a NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// isUniqueViolation detecta violaciones de unique constraint (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

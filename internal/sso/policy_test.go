package sso

import (
	"context"
	"testing"

	"github.com/dropDatabas3/vincsso/internal/cache"
	"github.com/dropDatabas3/vincsso/internal/store/memory"
)

func newTestPolicyStore(t *testing.T) *PolicyStore {
	t.Helper()
	return NewPolicyStore(memory.NewSecurityConfigRepo(), cache.NewMemory("test", 0))
}

func TestPolicyStore_LazyDefaults(t *testing.T) {
	ps := newTestPolicyStore(t)
	ctx := context.Background()

	cfg, err := ps.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.TenantID != "acme" {
		t.Errorf("tenant = %q, want acme", cfg.TenantID)
	}
	if cfg.MaxSessionsPerUser != 5 || cfg.SessionTimeoutHours != 24 {
		t.Errorf("session defaults = %d/%dh, want 5/24h", cfg.MaxSessionsPerUser, cfg.SessionTimeoutHours)
	}
	if cfg.MaxLoginAttempts != 5 || cfg.LockoutMinutes != 15 {
		t.Errorf("lockout defaults = %d/%dm, want 5/15m", cfg.MaxLoginAttempts, cfg.LockoutMinutes)
	}
	if !cfg.EnableProgressiveDelay {
		t.Error("progressive delay should default on")
	}

	// Segunda lectura: misma política, no una nueva.
	again, err := ps.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get again: %v", err)
	}
	if !again.CreatedAt.Equal(cfg.CreatedAt) {
		t.Error("second Get created a new policy")
	}
}

func TestPolicyStore_UpdateInvalidatesCache(t *testing.T) {
	ps := newTestPolicyStore(t)
	ctx := context.Background()

	if _, err := ps.Get(ctx, "acme"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	max := 2
	updated, err := ps.Update(ctx, "acme", updateInput(&max))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.MaxSessionsPerUser != 2 {
		t.Fatalf("MaxSessionsPerUser = %d, want 2", updated.MaxSessionsPerUser)
	}

	// La lectura post-update no puede servir el valor viejo.
	cfg, err := ps.Get(ctx, "acme")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if cfg.MaxSessionsPerUser != 2 {
		t.Errorf("stale read: MaxSessionsPerUser = %d, want 2", cfg.MaxSessionsPerUser)
	}
}

func TestPolicyStore_UpdateCreatesLazily(t *testing.T) {
	ps := newTestPolicyStore(t)
	max := 3
	cfg, err := ps.Update(context.Background(), "fresh-tenant", updateInput(&max))
	if err != nil {
		t.Fatalf("Update on fresh tenant: %v", err)
	}
	if cfg.MaxSessionsPerUser != 3 {
		t.Errorf("MaxSessionsPerUser = %d, want 3", cfg.MaxSessionsPerUser)
	}
	// El resto queda en default.
	if cfg.MaxLoginAttempts != 5 {
		t.Errorf("MaxLoginAttempts = %d, want default 5", cfg.MaxLoginAttempts)
	}
}

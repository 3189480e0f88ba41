package sso

import (
	"context"
	"testing"
	"time"

	"github.com/dropDatabas3/vincsso/internal/cache"
	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/store/memory"
)

func newTestRegistry(t *testing.T) *IPBlockRegistry {
	t.Helper()
	ps := NewPolicyStore(memory.NewSecurityConfigRepo(), cache.NewMemory("test", 0))
	return NewIPBlockRegistry(memory.NewBlockedIPRepo(), ps)
}

func TestIPBlock_GlobalPrecedence(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	// Bloqueo global (tenant vacío): pega para cualquier tenant.
	if _, err := r.Block(ctx, repository.BlockIPInput{
		IPAddress: "203.0.113.7",
		Reason:    repository.BlockReasonAbuse,
		BlockedBy: "admin",
	}); err != nil {
		t.Fatalf("Block global: %v", err)
	}

	blocked, b, err := r.IsBlocked(ctx, "203.0.113.7", "acme")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if !blocked {
		t.Fatal("global block did not apply to tenant request")
	}
	if b == nil || !b.IsGlobal {
		t.Error("expected the global block record")
	}

	// Y también sin tenant.
	blocked, _, err = r.IsBlocked(ctx, "203.0.113.7", "")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if !blocked {
		t.Error("global block did not apply platform-wide")
	}
}

func TestIPBlock_TenantScoped(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Block(ctx, repository.BlockIPInput{
		IPAddress: "198.51.100.2",
		TenantID:  "acme",
		Reason:    repository.BlockReasonBruteForce,
		BlockedBy: "system",
	}); err != nil {
		t.Fatalf("Block: %v", err)
	}

	blocked, _, err := r.IsBlocked(ctx, "198.51.100.2", "acme")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if !blocked {
		t.Error("tenant block did not apply to its tenant")
	}

	// Otro tenant no hereda el bloqueo.
	blocked, _, err = r.IsBlocked(ctx, "198.51.100.2", "globex")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if blocked {
		t.Error("tenant block leaked to another tenant")
	}
}

func TestIPBlock_UpsertMerges(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	first, err := r.Block(ctx, repository.BlockIPInput{
		IPAddress: "198.51.100.9", TenantID: "acme",
		Reason: repository.BlockReasonBruteForce, BlockedBy: "system",
	})
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	second, err := r.Block(ctx, repository.BlockIPInput{
		IPAddress: "198.51.100.9", TenantID: "acme",
		Reason: repository.BlockReasonAbuse, BlockedBy: "system",
	})
	if err != nil {
		t.Fatalf("re-Block: %v", err)
	}
	if second.ID != first.ID {
		t.Error("re-block created a new row instead of merging")
	}
	if second.AttemptCount != 2 {
		t.Errorf("AttemptCount = %d, want 2", second.AttemptCount)
	}
	if second.Reason != repository.BlockReasonAbuse {
		t.Errorf("Reason = %q, want merged abuse", second.Reason)
	}
}

func TestIPBlock_ExpiryAndUnblock(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	if _, err := r.Block(ctx, repository.BlockIPInput{
		IPAddress: "198.51.100.3", TenantID: "acme",
		Reason: repository.BlockReasonManual, BlockedBy: "admin",
		ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("Block: %v", err)
	}

	// Expirado: no bloquea aunque el sweep físico no haya corrido.
	blocked, _, err := r.IsBlocked(ctx, "198.51.100.3", "acme")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if blocked {
		t.Error("expired block still applied")
	}

	// Unblock idempotente.
	if err := r.Unblock(ctx, "198.51.100.3", "acme", "admin"); err != nil {
		t.Fatalf("Unblock: %v", err)
	}
	if err := r.Unblock(ctx, "198.51.100.3", "acme", "admin"); err != nil {
		t.Fatalf("Unblock twice: %v", err)
	}
}

func TestIPBlock_PolicyDenyAndAllowLists(t *testing.T) {
	ps := NewPolicyStore(memory.NewSecurityConfigRepo(), cache.NewMemory("test", 0))
	r := NewIPBlockRegistry(memory.NewBlockedIPRepo(), ps)
	ctx := context.Background()

	if _, err := ps.Update(ctx, "acme", repository.UpdateSecurityConfigInput{
		IPDenyList:  []string{"172.16.0.0/12"},
		IPAllowList: []string{"172.16.5.5"},
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Deny por CIDR.
	blocked, _, err := r.IsBlocked(ctx, "172.16.9.9", "acme")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if !blocked {
		t.Error("deny list CIDR did not block")
	}

	// Allow exacto gana sobre el deny.
	blocked, _, err = r.IsBlocked(ctx, "172.16.5.5", "acme")
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if blocked {
		t.Error("allow list entry was blocked")
	}
}

func TestIPBlock_DeactivateExpired(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)
	if _, err := r.Block(ctx, repository.BlockIPInput{
		IPAddress: "198.51.100.4", TenantID: "acme",
		Reason: repository.BlockReasonManual, BlockedBy: "admin", ExpiresAt: &past,
	}); err != nil {
		t.Fatalf("Block: %v", err)
	}
	n, err := r.DeactivateExpired(ctx)
	if err != nil {
		t.Fatalf("DeactivateExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("deactivated %d, want 1", n)
	}
}

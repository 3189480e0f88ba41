package sso

import (
	"context"
	"testing"
	"time"

	"github.com/dropDatabas3/vincsso/internal/cache"
	"github.com/dropDatabas3/vincsso/internal/domain/repository"
	"github.com/dropDatabas3/vincsso/internal/store/memory"
)

func newTestLedger(t *testing.T) (*AttemptLedger, *PolicyStore) {
	t.Helper()
	ps := NewPolicyStore(memory.NewSecurityConfigRepo(), cache.NewMemory("test", 0))
	return NewAttemptLedger(memory.NewLoginAttemptRepo(), ps), ps
}

func failN(t *testing.T, l *AttemptLedger, tenant, email, ip string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := l.RecordAttempt(context.Background(), AttemptInput{
			TenantID:  tenant,
			Email:     email,
			IPAddress: ip,
			Success:   false,
			Reason:    repository.FailureInvalidCredentials,
		})
		if err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}
}

func TestCheckLockout_FlatLockoutAtMax(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// Hasta 4 fallos (default max=5): sin lockout plano. El delay
	// progresivo arranca antes, así que lo apagamos para aislar.
	_, err := l.policy.Update(ctx, "acme", repository.UpdateSecurityConfigInput{
		EnableProgressiveDelay: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	failN(t, l, "acme", "u1@acme.test", "10.0.0.1", 4)
	st, err := l.CheckLockout(ctx, "acme", "u1@acme.test", "10.0.0.1")
	if err != nil {
		t.Fatalf("CheckLockout: %v", err)
	}
	if st.Locked {
		t.Fatalf("locked after 4 failures, want unlocked (failed=%d)", st.Failed)
	}

	// El quinto fallo dispara el lockout: el sexto intento se rechaza
	// aunque traiga credenciales correctas.
	failN(t, l, "acme", "u1@acme.test", "10.0.0.1", 1)
	st, err = l.CheckLockout(ctx, "acme", "u1@acme.test", "10.0.0.1")
	if err != nil {
		t.Fatalf("CheckLockout: %v", err)
	}
	if !st.Locked {
		t.Fatal("not locked after 5 failures")
	}
	if st.RetryAfter <= 0 || st.RetryAfter > 15*time.Minute {
		t.Errorf("RetryAfter = %v, want (0, 15m]", st.RetryAfter)
	}
}

func TestCheckLockout_UnionEmailOrIP(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	if _, err := l.policy.Update(ctx, "acme", repository.UpdateSecurityConfigInput{
		EnableProgressiveDelay: boolPtr(false),
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// 3 fallos del email desde una IP + 2 fallos de la misma IP contra
	// otros emails: la unión llega al tope.
	failN(t, l, "acme", "u1@acme.test", "10.0.0.9", 3)
	failN(t, l, "acme", "other1@acme.test", "10.0.0.9", 1)
	failN(t, l, "acme", "other2@acme.test", "10.0.0.9", 1)

	st, err := l.CheckLockout(ctx, "acme", "u1@acme.test", "10.0.0.9")
	if err != nil {
		t.Fatalf("CheckLockout: %v", err)
	}
	if !st.Locked {
		t.Fatalf("union count should lock (failed=%d)", st.Failed)
	}

	// Un email distinto desde una IP limpia no arrastra el lockout.
	st, err = l.CheckLockout(ctx, "acme", "clean@acme.test", "192.168.1.1")
	if err != nil {
		t.Fatalf("CheckLockout: %v", err)
	}
	if st.Locked {
		t.Error("unrelated email+ip locked")
	}
}

func TestCheckLockout_ProgressiveDelay(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	// 3 fallos consecutivos (umbral) con delay progresivo activo: queda
	// en espera aunque no llegó al tope plano de 5.
	failN(t, l, "acme", "u1@acme.test", "10.0.0.1", 3)
	st, err := l.CheckLockout(ctx, "acme", "u1@acme.test", "10.0.0.1")
	if err != nil {
		t.Fatalf("CheckLockout: %v", err)
	}
	if !st.Locked {
		t.Fatal("progressive delay not applied after 3 consecutive failures")
	}
	if st.RetryAfter > 15*time.Minute {
		t.Errorf("RetryAfter = %v exceeds lockout window cap", st.RetryAfter)
	}
}

func TestCheckLockout_SuccessResetsConsecutive(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	failN(t, l, "acme", "u1@acme.test", "10.0.0.1", 2)
	if err := l.RecordAttempt(ctx, AttemptInput{
		TenantID: "acme", Email: "u1@acme.test", IPAddress: "10.0.0.1", Success: true,
	}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	failN(t, l, "acme", "u1@acme.test", "10.0.0.1", 2)

	// Consecutivos = 2 (el éxito corta la racha): bajo el umbral
	// progresivo y bajo el tope plano.
	st, err := l.CheckLockout(ctx, "acme", "u1@acme.test", "10.0.0.1")
	if err != nil {
		t.Fatalf("CheckLockout: %v", err)
	}
	if st.Locked {
		t.Errorf("locked with broken streak (failed=%d)", st.Failed)
	}
}

func TestEvaluateRisk_WindowExcludesOldAttempts(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	failN(t, l, "acme", "u1@acme.test", "10.0.0.1", 3)

	counts, err := l.EvaluateRisk(ctx, "acme", "u1@acme.test", "10.0.0.1", 15*time.Minute)
	if err != nil {
		t.Fatalf("EvaluateRisk: %v", err)
	}
	if counts.Failed != 3 || counts.Total != 3 {
		t.Errorf("counts = %+v, want 3/3", counts)
	}

	// Ventana cero: nada cae adentro, el lockout expira con la ventana.
	counts, err = l.EvaluateRisk(ctx, "acme", "u1@acme.test", "10.0.0.1", 0)
	if err != nil {
		t.Fatalf("EvaluateRisk: %v", err)
	}
	if counts.Failed != 0 {
		t.Errorf("zero window counted %d failures", counts.Failed)
	}
}

func TestPurgeOlderThan(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	failN(t, l, "acme", "u1@acme.test", "10.0.0.1", 2)

	n, err := l.PurgeOlderThan(ctx, time.Now().UTC().Add(time.Second))
	if err != nil {
		t.Fatalf("PurgeOlderThan: %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d, want 2", n)
	}
}

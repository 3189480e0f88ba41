package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) *rdb.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
}

func TestRedisLimiter_AllowsUpToMax(t *testing.T) {
	client := newTestClient(t)
	l := NewRedisLimiter(client, "t:", 3, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Allow #%d err: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("hit %d should be allowed", i)
		}
		if res.CurrentHits != int64(i) {
			t.Fatalf("CurrentHits = %d, want %d", res.CurrentHits, i)
		}
	}

	res, err := l.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Fatal("hit 4 should be rejected")
	}
	if res.Remaining != 0 {
		t.Fatalf("Remaining = %d, want 0", res.Remaining)
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("RetryAfter = %v, want > 0", res.RetryAfter)
	}
}

func TestRedisLimiter_KeysAreIndependent(t *testing.T) {
	client := newTestClient(t)
	l := NewRedisLimiter(client, "t:", 1, time.Minute)
	ctx := context.Background()

	if res, _ := l.Allow(ctx, "a"); !res.Allowed {
		t.Fatal("first hit on 'a' should pass")
	}
	if res, _ := l.Allow(ctx, "a"); res.Allowed {
		t.Fatal("second hit on 'a' should be rejected")
	}
	if res, _ := l.Allow(ctx, "b"); !res.Allowed {
		t.Fatal("'b' should not be affected by 'a'")
	}
}

func TestMultiRedisLimiter_PerConfigLimits(t *testing.T) {
	client := newTestClient(t)
	m := NewMultiRedisLimiter(client, "t:")
	ctx := context.Background()

	// límite 2 para login
	for i := 0; i < 2; i++ {
		if res, err := m.AllowWithLimits(ctx, "ip|/login", 2, time.Minute); err != nil || !res.Allowed {
			t.Fatalf("login hit %d = (%v, %v)", i, res.Allowed, err)
		}
	}
	if res, _ := m.AllowWithLimits(ctx, "ip|/login", 2, time.Minute); res.Allowed {
		t.Fatal("login should be limited after 2 hits")
	}

	// otro límite para token: contador separado
	if res, _ := m.AllowWithLimits(ctx, "ip|/token", 5, time.Minute); !res.Allowed {
		t.Fatal("token endpoint has its own window")
	}
}

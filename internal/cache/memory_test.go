package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("test", time.Minute)

	if _, err := c.Get(ctx, "nada"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set err: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil || got != "v" {
		t.Fatalf("Get = (%q, %v), want (v, nil)", got, err)
	}

	ok, err := c.Exists(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Exists = (%v, %v)", ok, err)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete err: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemory_GetDelSingleWinner(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("test", time.Minute)

	if err := c.Set(ctx, "one-shot", "v", time.Minute); err != nil {
		t.Fatalf("Set err: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetDel(ctx, "one-shot")
			if err == nil {
				if v != "v" {
					t.Errorf("GetDel = %q, want v", v)
				}
				wins.Add(1)
			} else if !IsNotFound(err) {
				t.Errorf("GetDel err: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("wins = %d, want 1", wins.Load())
	}
	if _, err := c.Get(ctx, "one-shot"); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound after GetDel, got %v", err)
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("", time.Minute)

	if err := c.Set(ctx, "fugaz", "v", 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := c.Get(ctx, "fugaz"); !IsNotFound(err) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestMemory_PrefixIsolation(t *testing.T) {
	ctx := context.Background()
	a := NewMemory("a", time.Minute)
	b := NewMemory("b", time.Minute)

	_ = a.Set(ctx, "k", "va", time.Minute)
	if _, err := b.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("prefixes should isolate caches, got %v", err)
	}
}

func TestNew_DefaultsToMemory(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	if _, ok := c.(*memoryClient); !ok {
		t.Fatalf("expected memory client, got %T", c)
	}
}

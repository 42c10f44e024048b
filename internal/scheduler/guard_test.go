package scheduler

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryFireGuard(t *testing.T) {
	g := NewMemoryFireGuard()
	ctx := context.Background()

	release, err := g.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := g.Acquire(ctx, "a"); !errors.Is(err, ErrGuardHeld) {
		t.Fatalf("expected ErrGuardHeld, got %v", err)
	}
	if _, err := g.Acquire(ctx, "b"); err != nil {
		t.Fatalf("other id should be free: %v", err)
	}
	release()
	release()
	if _, err := g.Acquire(ctx, "a"); err != nil {
		t.Fatalf("expected guard free after release: %v", err)
	}
}

func TestRedisFireGuard_NotReady(t *testing.T) {
	g := NewRedisFireGuard(nil, 0)
	if _, err := g.Acquire(context.Background(), "a"); err == nil || errors.Is(err, ErrGuardHeld) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

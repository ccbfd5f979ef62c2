package identity

import (
	"context"
	"strings"
	"testing"

	domain "yogastudio/internal/domain/identity"
)

// TestMemoryStore_Lifecycle verifies save, load and idempotent clear.
func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.Load(ctx); ok || err != nil {
		t.Fatalf("fresh store Load = %v, %v", ok, err)
	}

	id := domain.Identity{ID: 1, Token: "t", Username: "yoga@studio.com", Admin: true}
	if err := s.Save(ctx, id); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := s.Load(ctx)
	if err != nil || !ok || got != id {
		t.Fatalf("Load = %+v, %v, %v", got, ok, err)
	}
	raw, _ := s.Raw()
	if !strings.Contains(raw, `"admin":true`) {
		t.Errorf("raw = %s", raw)
	}

	for i := 0; i < 2; i++ {
		if err := s.Clear(ctx); err != nil {
			t.Fatalf("Clear #%d: %v", i, err)
		}
	}
	if _, ok, _ := s.Load(ctx); ok {
		t.Error("record survived Clear")
	}
}

// TestMemoryStore_SeedOnBoot verifies a staged seed lands once at boot.
func TestMemoryStore_SeedOnBoot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id := domain.Identity{ID: 2, Token: "t", Username: "user@studio.com"}

	if err := s.SeedOnBoot(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Load(ctx); ok {
		t.Fatal("seed visible before boot")
	}
	s.Boot()
	if _, ok, _ := s.Load(ctx); !ok {
		t.Fatal("seed missing after boot")
	}
	_ = s.Clear(ctx)
	s.Boot()
	if _, ok, _ := s.Load(ctx); ok {
		t.Error("seed re-applied on second boot")
	}
}

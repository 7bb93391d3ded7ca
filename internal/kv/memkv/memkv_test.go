package memkv

import (
	"context"
	"errors"
	"testing"

	"greevil/internal/kv"
	"greevil/internal/kv/kvtest"
)

func TestMemKVConformance(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store { return New() })
}

func TestMemKVHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Get(ctx, "users", "a"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMemKVReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	in := kv.Item{"Friends": []string{"b"}}
	if err := s.Put(ctx, "users", "a", in); err != nil {
		t.Fatalf("put: %v", err)
	}
	in["Friends"] = []string{"mutated"}
	got, _ := s.Get(ctx, "users", "a")
	got["Friends"].([]any)[0] = "mutated too"
	again, _ := s.Get(ctx, "users", "a")
	if l, _ := again.Strings("Friends"); l[0] != "b" {
		t.Fatalf("store state aliased by caller: %v", l)
	}
}

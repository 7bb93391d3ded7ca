// Package kvtest checks that a kv.Store honours the driver contract.
package kvtest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"testing"

	"greevil/internal/kv"
)

// Run executes the conformance suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Helper()

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(context.Background(), "users", "nope"); !errors.Is(err, kv.ErrKeyNotFound) {
			t.Fatalf("expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("put get overwrite", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, "users", "a", kv.Item{"CustomerId": "a", "Name": "A", "Friends": []string{"b"}}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.Put(ctx, "users", "a", kv.Item{"CustomerId": "a", "Name": "A2"}); err != nil {
			t.Fatalf("overwrite: %v", err)
		}
		it, err := s.Get(ctx, "users", "a")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if name, _ := it.String("Name"); name != "A2" {
			t.Fatalf("expected overwritten name, got %q", name)
		}
		if friends, _ := it.Strings("Friends"); len(friends) != 0 {
			t.Fatalf("put must replace the whole item, still has %v", friends)
		}
	})

	t.Run("tables are separate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, "users", "k", kv.Item{"Name": "user"}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if _, err := s.Get(ctx, "expenses", "k"); !errors.Is(err, kv.ErrKeyNotFound) {
			t.Fatalf("key leaked across tables: %v", err)
		}
	})

	t.Run("create if absent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Create(ctx, "users", "a", kv.Item{"Name": "first"}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.Create(ctx, "users", "a", kv.Item{"Name": "second"}); !errors.Is(err, kv.ErrKeyExists) {
			t.Fatalf("expected ErrKeyExists, got %v", err)
		}
		it, _ := s.Get(ctx, "users", "a")
		if name, _ := it.String("Name"); name != "first" {
			t.Fatalf("create overwrote existing item: %q", name)
		}
	})

	t.Run("append if absent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, "users", "a", kv.Item{"Name": "A"}); err != nil {
			t.Fatalf("put: %v", err)
		}
		for _, v := range []string{"x", "y", "x"} {
			if err := s.AppendIfAbsent(ctx, "users", "a", "Expenses", v); err != nil {
				t.Fatalf("append %s: %v", v, err)
			}
		}
		it, _ := s.Get(ctx, "users", "a")
		list, err := it.Strings("Expenses")
		if err != nil {
			t.Fatalf("strings: %v", err)
		}
		if !slices.Equal(list, []string{"x", "y"}) {
			t.Fatalf("expected [x y], got %v", list)
		}
		if name, _ := it.String("Name"); name != "A" {
			t.Fatalf("append clobbered other attributes: %v", it)
		}
		if err := s.AppendIfAbsent(ctx, "users", "ghost", "Expenses", "x"); !errors.Is(err, kv.ErrKeyNotFound) {
			t.Fatalf("append to missing item: expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("concurrent appends keep every value once", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, "users", "a", kv.Item{"Friends": []string{}}); err != nil {
			t.Fatalf("put: %v", err)
		}
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 10; i++ {
			for rep := 0; rep < 2; rep++ {
				wg.Add(1)
				go func(v string) {
					defer wg.Done()
					errs <- s.AppendIfAbsent(ctx, "users", "a", "Friends", v)
				}(fmt.Sprintf("f%d", i))
			}
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("append: %v", err)
			}
		}
		it, _ := s.Get(ctx, "users", "a")
		list, _ := it.Strings("Friends")
		if len(list) != 10 {
			t.Fatalf("expected 10 distinct values, got %d: %v", len(list), list)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.Put(ctx, "expenses", "e", kv.Item{"ExpenseId": "e"}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.Delete(ctx, "expenses", "e"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := s.Get(ctx, "expenses", "e"); !errors.Is(err, kv.ErrKeyNotFound) {
			t.Fatalf("expected ErrKeyNotFound after delete, got %v", err)
		}
		if err := s.Delete(ctx, "expenses", "e"); !errors.Is(err, kv.ErrKeyNotFound) {
			t.Fatalf("second delete: expected ErrKeyNotFound, got %v", err)
		}
	})

	t.Run("scan", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, k := range []string{"b", "a"} {
			if err := s.Put(ctx, "users", k, kv.Item{"CustomerId": k}); err != nil {
				t.Fatalf("put: %v", err)
			}
		}
		if err := s.Put(ctx, "expenses", "e", kv.Item{"ExpenseId": "e"}); err != nil {
			t.Fatalf("put: %v", err)
		}
		items, err := s.Scan(ctx, "users")
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		var keys []string
		for _, it := range items {
			k, _ := it.String("CustomerId")
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if !slices.Equal(keys, []string{"a", "b"}) {
			t.Fatalf("unexpected scan result %v", keys)
		}
	})
}

// Package memkv is an in-process kv.Store. Each method holds one lock, which
// gives the same single-item atomicity a remote store provides.
package memkv

import (
	"context"
	"slices"
	"sync"

	"greevil/internal/kv"
)

type Store struct {
	mu     sync.Mutex
	tables map[string]map[string]kv.Item
}

var _ kv.Store = (*Store)(nil)

func New() *Store {
	return &Store{tables: make(map[string]map[string]kv.Item)}
}

func (s *Store) table(name string) map[string]kv.Item {
	t, ok := s.tables[name]
	if !ok {
		t = make(map[string]kv.Item)
		s.tables[name] = t
	}
	return t
}

func (s *Store) Get(ctx context.Context, table, key string) (kv.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.table(table)[key]
	if !ok {
		return nil, kv.ErrKeyNotFound
	}
	return it.Clone(), nil
}

func (s *Store) Put(ctx context.Context, table, key string, item kv.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table(table)[key] = item.Clone()
	return nil
}

func (s *Store) Create(ctx context.Context, table, key string, item kv.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(table)
	if _, exists := t[key]; exists {
		return kv.ErrKeyExists
	}
	t[key] = item.Clone()
	return nil
}

func (s *Store) AppendIfAbsent(ctx context.Context, table, key, attr, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.table(table)[key]
	if !ok {
		return kv.ErrKeyNotFound
	}
	list, err := it.Strings(attr)
	if err != nil {
		return err
	}
	if slices.Contains(list, value) {
		return nil
	}
	out := make([]any, 0, len(list)+1)
	for _, v := range list {
		out = append(out, v)
	}
	it[attr] = append(out, value)
	return nil
}

func (s *Store) Delete(ctx context.Context, table, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(table)
	if _, ok := t[key]; !ok {
		return kv.ErrKeyNotFound
	}
	delete(t, key)
	return nil
}

func (s *Store) Scan(ctx context.Context, table string) ([]kv.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(table)
	out := make([]kv.Item, 0, len(t))
	for _, it := range t {
		out = append(out, it.Clone())
	}
	return out, nil
}

func (s *Store) Close() error { return nil }

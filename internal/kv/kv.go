// Package kv defines the storage driver used by the networked repository: a
// key-value store with single-item atomic mutations and no cross-item
// transactions.
package kv

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyExists   = errors.New("key already exists")
)

// Item is one stored record. Values are JSON-compatible: string, float64,
// bool, nil, []any or map[string]any. []string is accepted on write.
type Item map[string]any

type Store interface {
	// Get returns ErrKeyNotFound when the key is absent.
	Get(ctx context.Context, table, key string) (Item, error)
	// Put overwrites the whole item.
	Put(ctx context.Context, table, key string, item Item) error
	// Create stores the item only if the key is absent, else ErrKeyExists.
	Create(ctx context.Context, table, key string, item Item) error
	// AppendIfAbsent atomically adds value to the list attribute attr unless
	// already present. A missing attribute is created as a one-element list.
	// Returns ErrKeyNotFound when the item itself is absent.
	AppendIfAbsent(ctx context.Context, table, key, attr, value string) error
	// Delete removes the item; ErrKeyNotFound when absent.
	Delete(ctx context.Context, table, key string) error
	// Scan returns every item of the table in unspecified order.
	Scan(ctx context.Context, table string) ([]Item, error)
	Close() error
}

// ErrMalformed reports an item attribute with an unexpected shape.
var ErrMalformed = errors.New("malformed item")

// String returns a string attribute. A missing attribute yields "".
func (it Item) String(attr string) (string, error) {
	v, ok := it[attr]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: attribute %s is %T, want string", ErrMalformed, attr, v)
	}
	return s, nil
}

// Strings returns a list-of-strings attribute. A missing attribute yields an
// empty list.
func (it Item) Strings(attr string) ([]string, error) {
	v, ok := it[attr]
	if !ok || v == nil {
		return []string{}, nil
	}
	switch list := v.(type) {
	case []string:
		return slices.Clone(list), nil
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("%w: attribute %s holds %T, want string", ErrMalformed, attr, e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: attribute %s is %T, want list", ErrMalformed, attr, v)
	}
}

// Clone deep-copies the item so stores never share state with callers.
func (it Item) Clone() Item {
	if it == nil {
		return nil
	}
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case map[string]any:
		return map[string]any(Item(t).Clone())
	case Item:
		return t.Clone()
	default:
		return v
	}
}

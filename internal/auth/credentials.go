package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"greevil/internal/kv"
)

// DefaultCredentialTable holds one item per account in a kv.Store.
const DefaultCredentialTable = "greevil-credentials"

var ErrAccountNotFound = errors.New("account not found")

// Credentials stores password hashes keyed by normalized email.
type Credentials interface {
	// Create fails with ErrAccountExists when the email is taken.
	Create(ctx context.Context, email string, hash []byte) error
	// Hash fails with ErrAccountNotFound when the email is unknown.
	Hash(ctx context.Context, email string) ([]byte, error)
	// Delete succeeds for an unknown email.
	Delete(ctx context.Context, email string) error
}

// MemoryCredentials keeps hashes for the life of the process.
type MemoryCredentials struct {
	mu     sync.Mutex
	hashes map[string][]byte
}

func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{hashes: make(map[string][]byte)}
}

func (m *MemoryCredentials) Create(_ context.Context, email string, hash []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hashes[email]; ok {
		return ErrAccountExists
	}
	m.hashes[email] = hash
	return nil
}

func (m *MemoryCredentials) Hash(_ context.Context, email string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[email]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return h, nil
}

func (m *MemoryCredentials) Delete(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, email)
	return nil
}

// KVCredentials persists hashes in the same store as the user records, so
// accounts survive a restart together with their users.
type KVCredentials struct {
	store kv.Store
	table string
}

const (
	attrEmail = "Email"
	attrHash  = "PasswordHash"
)

func NewKVCredentials(store kv.Store, table string) *KVCredentials {
	if table == "" {
		table = DefaultCredentialTable
	}
	return &KVCredentials{store: store, table: table}
}

func (c *KVCredentials) Create(ctx context.Context, email string, hash []byte) error {
	err := c.store.Create(ctx, c.table, email, kv.Item{attrEmail: email, attrHash: string(hash)})
	if errors.Is(err, kv.ErrKeyExists) {
		return ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	return nil
}

func (c *KVCredentials) Hash(ctx context.Context, email string) ([]byte, error) {
	item, err := c.store.Get(ctx, c.table, email)
	if errors.Is(err, kv.ErrKeyNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	h, err := item.String(attrHash)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if h == "" {
		return nil, fmt.Errorf("load credentials: %w: empty hash for %s", kv.ErrMalformed, email)
	}
	return []byte(h), nil
}

func (c *KVCredentials) Delete(ctx context.Context, email string) error {
	err := c.store.Delete(ctx, c.table, email)
	if err != nil && !errors.Is(err, kv.ErrKeyNotFound) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

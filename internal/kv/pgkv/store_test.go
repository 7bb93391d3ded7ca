package pgkv

import (
	"context"
	"errors"
	"os"
	"testing"

	"greevil/internal/kv"
	"greevil/internal/kv/kvtest"
)

func TestMigrateURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@localhost:5432/greevil?sslmode=disable", "pgx5://u:p@localhost:5432/greevil?sslmode=disable"},
		{"postgresql://u@db/greevil", "pgx5://u@db/greevil"},
		{"pgx5://already", "pgx5://already"},
	}
	for _, tt := range tests {
		if got := migrateURL(tt.in); got != tt.want {
			t.Errorf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := decode([]byte("[1,2")); !errors.Is(err, kv.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

// Integration suite; runs only when a database is provided.
func TestPostgresConformance(t *testing.T) {
	url := os.Getenv("GREEVIL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("GREEVIL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	kvtest.Run(t, func(t *testing.T) kv.Store {
		if err := s.truncate(ctx); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}

package backend

import (
	"context"

	"greevil/internal/auth"
	"greevil/internal/repository"
)

// CleanupFunc releases the resources held by a backend
type CleanupFunc func() error

// BackendResult contains the repository, the account credentials kept
// alongside it and an optional cleanup function
type BackendResult struct {
	Repository  repository.Repository
	Credentials auth.Credentials
	Cleanup     CleanupFunc
}

// Close runs Cleanup if one is set
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates repositories based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for repository creation
type Config struct {
	Type BackendType

	// Table names for the key-value backed repositories
	UserTable       string
	ExpenseTable    string
	CredentialTable string

	// SQLite specific
	SQLiteDBPath string

	// PostgreSQL specific
	DatabaseURL string
}

// BackendType names a repository implementation
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

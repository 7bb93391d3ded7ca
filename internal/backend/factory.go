package backend

import (
	"context"
	"fmt"
	"log/slog"

	"greevil/internal/auth"
	"greevil/internal/kv"
	"greevil/internal/kv/pgkv"
	"greevil/internal/kv/sqlitekv"
	"greevil/internal/repository/memory"
	"greevil/internal/repository/networked"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend()
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Info("Initialized memory repository")
	return &BackendResult{Repository: memory.New(), Credentials: auth.NewMemoryCredentials()}, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	store, err := sqlitekv.New(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}
	f.logger.Info("Initialized SQLite repository",
		"db_path", config.SQLiteDBPath,
		"user_table", config.UserTable,
		"expense_table", config.ExpenseTable,
		"credential_table", config.CredentialTable)
	return f.networked(store, config), nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := pgkv.New(ctx, config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
	}
	f.logger.Info("Initialized PostgreSQL repository",
		"user_table", config.UserTable,
		"expense_table", config.ExpenseTable,
		"credential_table", config.CredentialTable)
	return f.networked(store, config), nil
}

func (f *DefaultFactory) networked(store kv.Store, config Config) *BackendResult {
	repo := networked.New(store, config.UserTable, config.ExpenseTable)
	return &BackendResult{
		Repository:  repo,
		Credentials: auth.NewKVCredentials(store, config.CredentialTable),
		Cleanup:     repo.Close,
	}
}

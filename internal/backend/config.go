package backend

import (
	"fmt"

	"greevil/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.RepositoryName)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid repository in config: %s", appConfig.RepositoryName)
	}

	return Config{
		Type:            backendType,
		UserTable:       appConfig.UserTable,
		ExpenseTable:    appConfig.ExpenseTable,
		CredentialTable: appConfig.CredentialTable,
		SQLiteDBPath:    appConfig.SQLiteDBPath,
		DatabaseURL:     appConfig.DatabaseURL,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	case MemoryBackend:
		// nothing to check
	}

	if c.Type != MemoryBackend {
		if c.UserTable != "" && c.UserTable == c.ExpenseTable {
			return fmt.Errorf("user and expense tables must differ")
		}
		if c.CredentialTable != "" && (c.CredentialTable == c.UserTable || c.CredentialTable == c.ExpenseTable) {
			return fmt.Errorf("credential table must differ from the user and expense tables")
		}
	}
	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}

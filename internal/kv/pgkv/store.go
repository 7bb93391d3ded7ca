// Package pgkv stores kv items as JSONB documents in PostgreSQL. It is the
// networked driver: every operation is a single statement, so single-item
// atomicity comes from row-level locking and no multi-item transaction is used.
package pgkv

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"greevil/internal/kv"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// a pgx pool reuses connections across requests instead of dialing per call
type Store struct {
	pool *pgxpool.Pool
}

var _ kv.Store = (*Store)(nil)

// listExpr yields the attribute as a JSON array, or [] when missing or not a list.
const listExpr = `(CASE WHEN jsonb_typeof(doc->$3::text) = 'array' THEN doc->$3::text ELSE '[]'::jsonb END)`

const appendIfAbsentSQL = `
UPDATE kv_items
SET doc = jsonb_set(doc, ARRAY[$3::text], ` + listExpr + ` || to_jsonb($4::text), true),
    updated_at = now()
WHERE tbl = $1 AND key = $2
  AND NOT (` + listExpr + ` @> to_jsonb(ARRAY[$4::text]))`

func New(ctx context.Context, databaseURL string) (*Store, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.InfoContext(ctx, "PostgreSQL kv store ready", "host", pool.Config().ConnConfig.Host)
	return &Store{pool: pool}, nil
}

// RunMigrations applies the embedded schema using the golang-migrate pgx/v5 driver.
func RunMigrations(databaseURL string) error {
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres:// URL to the scheme the pgx/v5 migrate driver registers.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) Get(ctx context.Context, table, key string) (kv.Item, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM kv_items WHERE tbl = $1 AND key = $2`, table, key).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kv.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", table, key, err)
	}
	return decode(doc)
}

func (s *Store) Put(ctx context.Context, table, key string, item kv.Item) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO kv_items (tbl, key, doc) VALUES ($1, $2, $3)
		ON CONFLICT (tbl, key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		table, key, doc)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, table, key string, item kv.Item) error {
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO kv_items (tbl, key, doc) VALUES ($1, $2, $3)
		ON CONFLICT (tbl, key) DO NOTHING`,
		table, key, doc)
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", table, key, err)
	}
	if tag.RowsAffected() == 0 {
		return kv.ErrKeyExists
	}
	return nil
}

func (s *Store) AppendIfAbsent(ctx context.Context, table, key, attr, value string) error {
	tag, err := s.pool.Exec(ctx, appendIfAbsentSQL, table, key, attr, value)
	if err != nil {
		return fmt.Errorf("append %s to %s/%s.%s: %w", value, table, key, attr, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM kv_items WHERE tbl = $1 AND key = $2)`, table, key).Scan(&exists)
	if err != nil {
		return fmt.Errorf("lookup %s/%s: %w", table, key, err)
	}
	if !exists {
		return kv.ErrKeyNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table, key string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM kv_items WHERE tbl = $1 AND key = $2`, table, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, key, err)
	}
	if tag.RowsAffected() == 0 {
		return kv.ErrKeyNotFound
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, table string) ([]kv.Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM kv_items WHERE tbl = $1 ORDER BY key`, table)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	defer rows.Close()

	items := []kv.Item{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		it, err := decode(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	return items, nil
}

// truncate empties the table; used by tests against a shared database.
func (s *Store) truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE kv_items`)
	return err
}

func decode(doc []byte) (kv.Item, error) {
	var it kv.Item
	if err := json.Unmarshal(doc, &it); err != nil {
		return nil, fmt.Errorf("%w: %v", kv.ErrMalformed, err)
	}
	return it, nil
}

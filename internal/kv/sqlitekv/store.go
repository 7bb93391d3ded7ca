// Package sqlitekv stores kv items as JSON documents in a local SQLite file.
package sqlitekv

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"greevil/internal/kv"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

var _ kv.Store = (*Store)(nil)

const appendIfAbsentSQL = `
UPDATE kv_items
SET doc = json_insert(
        CASE WHEN COALESCE(json_type(doc, '$.' || ?1), 'null') = 'null'
             THEN json_set(doc, '$.' || ?1, json('[]'))
             ELSE doc END,
        '$.' || ?1 || '[#]', ?2),
    updated_at = CURRENT_TIMESTAMP
WHERE tbl = ?3 AND key = ?4
  AND NOT EXISTS (SELECT 1 FROM json_each(kv_items.doc, '$.' || ?1) WHERE value = ?2)`

func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one writer at a time; SQLite serialises writes anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite kv store ready", "path", dbPath)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) Get(ctx context.Context, table, key string) (kv.Item, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM kv_items WHERE tbl = ? AND key = ?`, table, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", table, key, err)
	}
	return decode(doc)
}

func (s *Store) Put(ctx context.Context, table, key string, item kv.Item) error {
	doc, err := encode(item)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv_items (tbl, key, doc) VALUES (?, ?, ?)
		ON CONFLICT (tbl, key) DO UPDATE SET doc = excluded.doc, updated_at = CURRENT_TIMESTAMP`,
		table, key, doc)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, table, key string, item kv.Item) error {
	doc, err := encode(item)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_items (tbl, key, doc) VALUES (?, ?, ?)
		ON CONFLICT (tbl, key) DO NOTHING`,
		table, key, doc)
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", table, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create %s/%s: %w", table, key, err)
	}
	if n == 0 {
		return kv.ErrKeyExists
	}
	return nil
}

func (s *Store) AppendIfAbsent(ctx context.Context, table, key, attr, value string) error {
	res, err := s.db.ExecContext(ctx, appendIfAbsentSQL, attr, value, table, key)
	if err != nil {
		return fmt.Errorf("append %s to %s/%s.%s: %w", value, table, key, attr, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("append %s to %s/%s.%s: %w", value, table, key, attr, err)
	}
	if n > 0 {
		return nil
	}
	// Nothing updated: either the value was already there or the item is missing.
	return s.exists(ctx, table, key)
}

func (s *Store) exists(ctx context.Context, table, key string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM kv_items WHERE tbl = ? AND key = ?`, table, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return kv.ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM kv_items WHERE tbl = ? AND key = ?`, table, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", table, key, err)
	}
	if n == 0 {
		return kv.ErrKeyNotFound
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, table string) ([]kv.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM kv_items WHERE tbl = ? ORDER BY key`, table)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", table, err)
	}
	defer rows.Close()

	items := []kv.Item{}
	for rows.Next() {
		var doc string
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

func encode(item kv.Item) (string, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return "", fmt.Errorf("encode item: %w", err)
	}
	return string(b), nil
}

func decode(doc string) (kv.Item, error) {
	var it kv.Item
	if err := json.Unmarshal([]byte(doc), &it); err != nil {
		return nil, fmt.Errorf("%w: %v", kv.ErrMalformed, err)
	}
	return it, nil
}

package sqlite

import (
	"context"
	"database/sql"

	"github.com/juju/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warriorguo/flowcanvas/store"
)

var (
	_ store.Store = &sqliteStore{}
)

const tableName = "flowcanvas_store"

type sqliteStore struct {
	db *sql.DB
}

// NewSqliteStore opens (or creates) the database file at path.
func NewSqliteStore(path string) (store.Store, error) {
	if path == "" {
		return nil, errors.BadRequestf("sqlite path is required")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to open sqlite %s", path)
	}
	// one writer at a time, sqlite locks the whole file anyway
	db.SetMaxOpenConns(1)

	s := &sqliteStore{db: db}
	if err := s.initTable(context.Background()); err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "failed to initialize table")
	}
	return s, nil
}

func (s *sqliteStore) initTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ` + tableName + ` (
			prefix TEXT NOT NULL,
			key TEXT NOT NULL,
			value BLOB,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (prefix, key)
		);
	`
	_, err := s.db.ExecContext(ctx, query)
	return errors.Trace(err)
}

func (s *sqliteStore) Get(ctx context.Context, prefix, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM `+tableName+` WHERE prefix = ? AND key = ?`, prefix, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "failed to get prefix=%s, key=%s", prefix, key)
	}
	return value, nil
}

func (s *sqliteStore) Set(ctx context.Context, prefix, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+tableName+` (prefix, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (prefix, key)
		DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, prefix, key, value)
	return errors.Annotatef(err, "failed to set prefix=%s, key=%s", prefix, key)
}

func (s *sqliteStore) Remove(ctx context.Context, prefix, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM `+tableName+` WHERE prefix = ? AND key = ?`, prefix, key)
	return errors.Annotatef(err, "failed to remove prefix=%s, key=%s", prefix, key)
}

// List reads all keys before calling iterator, so iterator may use the
// store while the single connection is free again.
func (s *sqliteStore) List(ctx context.Context, prefix string, iterator func(key string) bool) error {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM `+tableName+` WHERE prefix = ? ORDER BY key`, prefix)
	if err != nil {
		return errors.Annotatef(err, "failed to list prefix=%s", prefix)
	}

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return errors.Annotatef(err, "failed to scan key")
		}
		keys = append(keys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Trace(err)
	}

	for _, key := range keys {
		if !iterator(key) {
			break
		}
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

package persist

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

type sqliteStorage struct {
	db   *sql.DB
	cfg  config
	once sync.Once
	err  error
}

var _ Storage = (*sqliteStorage)(nil)

// NewSQLite returns a Storage backed by a SQLite database file.
// If dbPath is empty or ":memory:", an in-memory database is used.
func NewSQLite(ctx context.Context, dbPath string, opts ...Option) (Storage, error) {
	if dbPath == "" {
		dbPath = ":memory:"
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", dbPath)
	}
	// every connection to ":memory:" is its own database
	db.SetMaxOpenConns(1)

	cfg := applyOptions(opts)
	s := &sqliteStorage{db: db, cfg: cfg}

	qctx, cancel := cfg.queryCtx(ctx)
	defer cancel()
	if _, err := db.ExecContext(qctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable WAL")
	}
	if _, err := db.ExecContext(qctx, `CREATE TABLE IF NOT EXISTS session_kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create session_kv table")
	}
	return s, nil
}

func (s *sqliteStorage) Get(ctx context.Context, key string) (bool, []byte, error) {
	qctx, cancel := s.cfg.queryCtx(ctx)
	defer cancel()
	var data []byte
	err := s.db.QueryRowContext(qctx, `SELECT value FROM session_kv WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, errors.Wrapf(err, "sqlite get %s", key)
	}
	if data == nil {
		data = []byte{}
	}
	return true, data, nil
}

func (s *sqliteStorage) Set(ctx context.Context, key string, val []byte) error {
	qctx, cancel := s.cfg.queryCtx(ctx)
	defer cancel()
	if val == nil {
		val = []byte{}
	}
	_, err := s.db.ExecContext(qctx,
		`INSERT INTO session_kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, val, time.Now().Unix(),
	)
	if err != nil {
		return errors.Wrapf(err, "sqlite set %s", key)
	}
	return nil
}

func (s *sqliteStorage) Delete(ctx context.Context, key string) (bool, error) {
	qctx, cancel := s.cfg.queryCtx(ctx)
	defer cancel()
	result, err := s.db.ExecContext(qctx, `DELETE FROM session_kv WHERE key = ?`, key)
	if err != nil {
		return false, errors.Wrapf(err, "sqlite delete %s", key)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return rows > 0, nil
}

func (s *sqliteStorage) Close(_ context.Context) error {
	s.once.Do(func() {
		s.err = s.db.Close()
	})
	return s.err
}

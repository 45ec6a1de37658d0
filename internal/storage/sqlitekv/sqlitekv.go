package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/victornm/chatquiz/internal/storage"
)

// Store provides SQLite-backed session records.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the SQLite file at path and creates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := "file:" + filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; the per-chat lock already orders writes of a key.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{sqlDB: sqlDB}
	if err := s.initSchema(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			chat_key TEXT PRIMARY KEY,
			revision INTEGER NOT NULL,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}

	for _, stmt := range statements {
		if _, err := s.sqlDB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, key string) (storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return storage.Record{}, err
	}

	var r storage.Record
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT data, revision FROM chat_sessions WHERE chat_key = ?`, key,
	).Scan(&r.Value, &r.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Record{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Record{}, fmt.Errorf("get record: %w", err)
	}

	return r, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, revision int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := time.Now().UTC().UnixMilli()

	var (
		res sql.Result
		err error
	)
	if revision == 0 {
		res, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO chat_sessions (chat_key, revision, data, updated_at)
VALUES (?, 1, ?, ?)
ON CONFLICT (chat_key) DO NOTHING
`, key, value, now)
	} else {
		res, err = s.sqlDB.ExecContext(ctx, `
UPDATE chat_sessions
SET revision = revision + 1, data = ?, updated_at = ?
WHERE chat_key = ? AND revision = ?
`, value, now, key, revision)
	}
	if err != nil {
		return 0, fmt.Errorf("put record: %w", err)
	}

	if err := expectOneRow(res, key, revision); err != nil {
		return 0, err
	}

	return revision + 1, nil
}

func (s *Store) Delete(ctx context.Context, key string, revision int64) error {
	if revision == 0 {
		_, err := s.Get(ctx, key)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil
		case err != nil:
			return err
		default:
			return fmt.Errorf("%w: key=%s exists", storage.ErrConflict, key)
		}
	}

	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE chat_key = ? AND revision = ?`, key, revision)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	return expectOneRow(res, key, revision)
}

func expectOneRow(res sql.Result, key string, revision int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("%w: key=%s revision=%d", storage.ErrConflict, key, revision)
	}
	return nil
}

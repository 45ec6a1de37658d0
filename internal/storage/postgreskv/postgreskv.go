package postgreskv

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/chatquiz/internal/storage"
)

type Config struct {
	DB *pgxpool.Pool
}

// Store keeps session records in the chat_sessions table.
type Store struct {
	db *pgxpool.Pool
}

func New(c Config) *Store {
	return &Store{db: c.DB}
}

// EnsureSchema creates the table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	chat_key   TEXT PRIMARY KEY,
	revision   BIGINT NOT NULL,
	data       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create chat_sessions: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (storage.Record, error) {
	const stmt = `SELECT data, revision FROM chat_sessions WHERE chat_key = $1;`

	var r storage.Record
	err := s.db.QueryRow(ctx, stmt, key).Scan(&r.Value, &r.Revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Record{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Record{}, fmt.Errorf("get record: %w", err)
	}

	return r, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, revision int64) (int64, error) {
	const (
		insStmt = `
INSERT INTO chat_sessions (chat_key, revision, data, updated_at)
VALUES ($1, 1, $2, now());`
		updStmt = `
UPDATE chat_sessions
SET revision = revision + 1, data = $2, updated_at = now()
WHERE chat_key = $1 AND revision = $3;`
	)

	if revision == 0 {
		_, err := s.db.Exec(ctx, insStmt, key, value)

		var pgErr *pgconn.PgError
		const codeUniqueViolation = "23505"
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
			return 0, fmt.Errorf("%w: key=%s already exists", storage.ErrConflict, key)
		}
		if err != nil {
			return 0, fmt.Errorf("insert record: %w", err)
		}

		return 1, nil
	}

	tag, err := s.db.Exec(ctx, updStmt, key, value, revision)
	if err != nil {
		return 0, fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return 0, fmt.Errorf("%w: key=%s revision=%d", storage.ErrConflict, key, revision)
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

	tag, err := s.db.Exec(ctx, `DELETE FROM chat_sessions WHERE chat_key = $1 AND revision = $2;`, key, revision)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: key=%s revision=%d", storage.ErrConflict, key, revision)
	}

	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close is a no-op, the pool is owned by the caller.
func (s *Store) Close() error {
	return nil
}

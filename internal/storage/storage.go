// Package storage keeps a local sqlite cache of decrypted room messages so
// that re-entering a room shows its history without decrypting it again.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"kvchat/internal/models"
)

const HistoryFile = "history.db"

type Store struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a sqlite DB file.
func NewSQLiteStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	pragmas := []struct{ stmt, what string }{
		{`PRAGMA journal_mode = WAL;`, "enable WAL"},
		{`PRAGMA synchronous = NORMAL;`, "set synchronous"},
		{`PRAGMA foreign_keys = ON;`, "enable foreign_keys"},
		{`PRAGMA busy_timeout = 5000;`, "set busy_timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p.what, err)
		}
	}
	return &Store{db: db}, nil
}

// OpenHistory opens and migrates the history database at path, creating its
// directory when needed.
func OpenHistory(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	store, err := NewSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Migrate creates the messages table and its indexes. It is idempotent.
func (s *Store) Migrate() error {
	if s.db == nil {
		return ErrDBNotConnected
	}
	const sqlStmt = `
CREATE TABLE IF NOT EXISTS messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  room TEXT NOT NULL,
  idx INTEGER NOT NULL,
  author TEXT,
  text TEXT NOT NULL,
  timestamp INTEGER NOT NULL -- unix micro, first decryption
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_room_idx ON messages (room, idx);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages (room, timestamp DESC);
`
	if _, err := s.db.Exec(sqlStmt); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveMessages writes msgs in one transaction. Entries already cached for the
// same room and index are left untouched.
func (s *Store) SaveMessages(ctx context.Context, msgs ...models.Message) error {
	if s.db == nil {
		return ErrDBNotConnected
	}
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	const q = `
INSERT OR IGNORE INTO messages (room, idx, author, text, timestamp)
VALUES (?, ?, ?, ?, ?);
`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, m.Room, m.Index, m.Author, m.Text, m.Timestamp); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert message %s/%d: %w", m.Room, m.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// MessagesSince returns cached messages with index >= since ordered ASC.
// A limit <= 0 returns everything.
func (s *Store) MessagesSince(ctx context.Context, room string, since, limit int) ([]models.Message, error) {
	if s.db == nil {
		return nil, ErrDBNotConnected
	}
	if limit <= 0 {
		limit = -1
	}
	const q = `
SELECT room, idx, author, text, timestamp
FROM messages
WHERE room = ? AND idx >= ?
ORDER BY idx ASC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, room, since, limit)
	if err != nil {
		return nil, fmt.Errorf("select messages since: %w", err)
	}
	return scanMessages(rows)
}

// LatestMessages returns the newest limit messages of room ordered ASC.
func (s *Store) LatestMessages(ctx context.Context, room string, limit int) ([]models.Message, error) {
	if s.db == nil {
		return nil, ErrDBNotConnected
	}
	const q = `
SELECT room, idx, author, text, timestamp FROM (
  SELECT room, idx, author, text, timestamp
  FROM messages
  WHERE room = ?
  ORDER BY idx DESC
  LIMIT ?
) ORDER BY idx ASC;
`
	rows, err := s.db.QueryContext(ctx, q, room, limit)
	if err != nil {
		return nil, fmt.Errorf("select latest messages: %w", err)
	}
	return scanMessages(rows)
}

// LatestIndex returns the highest cached index for room or ErrNoRows.
func (s *Store) LatestIndex(ctx context.Context, room string) (int, error) {
	if s.db == nil {
		return 0, ErrDBNotConnected
	}
	const q = `SELECT MAX(idx) FROM messages WHERE room = ?;`
	var idx sql.NullInt64
	if err := s.db.QueryRowContext(ctx, q, room).Scan(&idx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNoRows
		}
		return 0, fmt.Errorf("select latest index: %w", err)
	}
	if !idx.Valid {
		return 0, ErrNoRows
	}
	return int(idx.Int64), nil
}

// FirstMissingIndex returns the lowest index of room that is not cached,
// which is 0 for an empty cache.
func (s *Store) FirstMissingIndex(ctx context.Context, room string) (int, error) {
	if s.db == nil {
		return 0, ErrDBNotConnected
	}
	const q = `
SELECT CASE
  WHEN NOT EXISTS (SELECT 1 FROM messages WHERE room = ? AND idx = 0) THEN 0
  ELSE (
    SELECT MIN(m.idx) + 1
    FROM messages m
    WHERE m.room = ?
      AND NOT EXISTS (SELECT 1 FROM messages n WHERE n.room = m.room AND n.idx = m.idx + 1)
  )
END;
`
	var idx int
	if err := s.db.QueryRowContext(ctx, q, room, room).Scan(&idx); err != nil {
		return 0, fmt.Errorf("select first missing index: %w", err)
	}
	return idx, nil
}

// IndicesSince returns the cached indices of room that are >= since.
func (s *Store) IndicesSince(ctx context.Context, room string, since int) (map[int]struct{}, error) {
	if s.db == nil {
		return nil, ErrDBNotConnected
	}
	rows, err := s.db.QueryContext(ctx, `SELECT idx FROM messages WHERE room = ? AND idx >= ?;`, room, since)
	if err != nil {
		return nil, fmt.Errorf("select indices: %w", err)
	}
	defer rows.Close()
	out := make(map[int]struct{})
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		out[idx] = struct{}{}
	}
	return out, rows.Err()
}

// DeleteRoom drops every cached message of room and returns rows deleted.
func (s *Store) DeleteRoom(ctx context.Context, room string) (int64, error) {
	if s.db == nil {
		return 0, ErrDBNotConnected
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE room = ?;`, room)
	if err != nil {
		return 0, fmt.Errorf("delete room: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ismaiel54/margin-exchange/internal/protocol"
	_ "modernc.org/sqlite"
)

// Store records handled commands and keeps their replies in an outbox until published
type Store struct {
	db *sql.DB
}

// RecordResult is the outcome of RecordReply
type RecordResult struct {
	Duplicate bool
	Entry     *OutboxEntry
}

// OutboxEntry is a reply waiting to be published
type OutboxEntry struct {
	ID                  int64
	CommandID           string
	ReplyJSON           string
	CreatedUnixMillis   int64
	PublishedUnixMillis sql.NullInt64
}

// Open creates or opens the journal database
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time; the dispatcher and the publisher share the handle
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS processed_commands (
			command_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			command_offset INTEGER NOT NULL,
			first_seen_unix_millis INTEGER NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outbox_replies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			command_id TEXT NOT NULL UNIQUE,
			reply_json TEXT NOT NULL,
			created_unix_millis INTEGER NOT NULL,
			published_unix_millis INTEGER NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_replies_unpublished
			ON outbox_replies(published_unix_millis)
			WHERE published_unix_millis IS NULL`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// journalKey is the command id, or the command offset for commands without one
func journalKey(offset int64, commandID string) string {
	if commandID == "" {
		return fmt.Sprintf("@%d", offset)
	}
	return commandID
}

// RecordReply marks a command as handled and queues its reply in one transaction.
// A command seen before is reported as a duplicate and nothing is written.
func (s *Store) RecordReply(ctx context.Context, offset int64, kind protocol.Kind, rep protocol.Reply) (RecordResult, error) {
	key := journalKey(offset, rep.ID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RecordResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM processed_commands WHERE command_id = ?",
		key,
	).Scan(&existing)
	if err == nil {
		return RecordResult{Duplicate: true}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return RecordResult{}, fmt.Errorf("failed to check processed command: %w", err)
	}

	status := "OK"
	if !rep.OK() {
		status = "ERROR"
	}
	now := time.Now().UnixMilli()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO processed_commands (command_id, kind, command_offset, first_seen_unix_millis, status)
		 VALUES (?, ?, ?, ?, ?)`,
		key, string(kind), offset, now, status,
	)
	if err != nil {
		return RecordResult{}, fmt.Errorf("failed to insert processed command: %w", err)
	}

	replyJSON, err := encodeReply(rep)
	if err != nil {
		return RecordResult{}, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_replies (command_id, reply_json, created_unix_millis, published_unix_millis)
		 VALUES (?, ?, ?, NULL)`,
		key, replyJSON, now,
	)
	if err != nil {
		return RecordResult{}, fmt.Errorf("failed to insert outbox reply: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return RecordResult{}, fmt.Errorf("failed to read outbox id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return RecordResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return RecordResult{
		Entry: &OutboxEntry{
			ID:                id,
			CommandID:         key,
			ReplyJSON:         replyJSON,
			CreatedUnixMillis: now,
		},
	}, nil
}

// Processed reports whether a command id has been journaled
func (s *Store) Processed(ctx context.Context, commandID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM processed_commands WHERE command_id = ?",
		commandID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query processed command: %w", err)
	}
	return n > 0, nil
}

// ListUnpublished returns queued replies in insertion order
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command_id, reply_json, created_unix_millis, published_unix_millis
		 FROM outbox_replies
		 WHERE published_unix_millis IS NULL
		 ORDER BY id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished replies: %w", err)
	}
	defer rows.Close()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.CommandID, &e.ReplyJSON, &e.CreatedUnixMillis, &e.PublishedUnixMillis); err != nil {
			return nil, fmt.Errorf("failed to scan reply: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// MarkPublished marks a queued reply as published
func (s *Store) MarkPublished(ctx context.Context, id int64, nowMillis int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox_replies SET published_unix_millis = ? WHERE id = ?",
		nowMillis, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark reply as published: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

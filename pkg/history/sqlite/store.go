// Package sqlite provides the on-device history.Store backed by a SQLite
// database via the pure-Go modernc.org/sqlite driver (no cgo, which matters
// for cross-compiled device builds).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/serin-ai/serin/pkg/history"
)

// titleMaxLen bounds derived conversation titles.
const titleMaxLen = 60

// Store implements history.Store on a SQLite database file.
type Store struct {
	db *sql.DB
}

var _ history.Store = (*Store)(nil)

// Open opens (or creates) the history database at path and applies the
// schema. The parent directory is created if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("history: create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping db: %w", err)
	}

	schema := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			role            TEXT NOT NULL,
			content         TEXT NOT NULL,
			created_at      INTEGER NOT NULL,
			image_base64    TEXT NOT NULL DEFAULT '',
			FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at DESC);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: apply schema: %w", err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Save implements history.Store.
func (s *Store) Save(ctx context.Context, messages []history.Record, title string) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("history: nothing to save")
	}
	if title == "" {
		title = deriveTitle(messages)
	}

	id := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations(id, title, created_at) VALUES(?, ?, ?)`,
		id, title, time.Now().UnixMilli(),
	); err != nil {
		return "", fmt.Errorf("history: insert conversation: %w", err)
	}
	if err := insertMessages(ctx, tx, id, messages); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("history: commit: %w", err)
	}
	return id, nil
}

// Update implements history.Store by replacing the conversation's messages.
func (s *Store) Update(ctx context.Context, id string, messages []history.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM conversations WHERE id = ?`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("history: check conversation: %w", err)
	}
	if exists == 0 {
		return history.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("history: clear messages: %w", err)
	}
	if err := insertMessages(ctx, tx, id, messages); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// Load implements history.Store.
func (s *Store) Load(ctx context.Context, id string) ([]history.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at, image_base64
		 FROM messages WHERE conversation_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("history: query messages: %w", err)
	}
	defer rows.Close()

	var records []history.Record
	for rows.Next() {
		var (
			rec history.Record
			ts  int64
		)
		if err := rows.Scan(&rec.Role, &rec.Content, &ts, &rec.ImageBase64); err != nil {
			return nil, fmt.Errorf("history: scan message: %w", err)
		}
		rec.Timestamp = time.UnixMilli(ts)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate messages: %w", err)
	}
	if len(records) == 0 {
		// Distinguish "empty conversation" from "unknown id".
		var exists int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM conversations WHERE id = ?`, id,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("history: check conversation: %w", err)
		}
		if exists == 0 {
			return nil, history.ErrNotFound
		}
	}
	return records, nil
}

// List implements history.Store.
func (s *Store) List(ctx context.Context) ([]history.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.title, c.created_at, COUNT(m.id)
		 FROM conversations c LEFT JOIN messages m ON m.conversation_id = c.id
		 GROUP BY c.id ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("history: query conversations: %w", err)
	}
	defer rows.Close()

	var out []history.Summary
	for rows.Next() {
		var (
			s  history.Summary
			ts int64
		)
		if err := rows.Scan(&s.ID, &s.Title, &ts, &s.Messages); err != nil {
			return nil, fmt.Errorf("history: scan conversation: %w", err)
		}
		s.CreatedAt = time.UnixMilli(ts)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete implements history.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("history: delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("history: rows affected: %w", err)
	}
	if n == 0 {
		return history.ErrNotFound
	}
	return nil
}

func insertMessages(ctx context.Context, tx *sql.Tx, id string, messages []history.Record) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages(conversation_id, role, content, created_at, image_base64)
		 VALUES(?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range messages {
		if _, err := stmt.ExecContext(ctx, id, m.Role, m.Content, m.Timestamp.UnixMilli(), m.ImageBase64); err != nil {
			return fmt.Errorf("history: insert message: %w", err)
		}
	}
	return nil
}

// deriveTitle builds a listing title from the first user message.
func deriveTitle(messages []history.Record) string {
	for _, m := range messages {
		if m.Role != "user" {
			continue
		}
		t := strings.TrimSpace(m.Content)
		if t == "" {
			continue
		}
		if runes := []rune(t); len(runes) > titleMaxLen {
			t = string(runes[:titleMaxLen])
		}
		return t
	}
	return "Conversation"
}

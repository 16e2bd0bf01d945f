package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// fetchLimit bounds how many rows Recent reads before Window trims them.
const fetchLimit = 100

// SQLStore keeps transcripts in the transcript table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore returns a Store backed by db. The schema is owned by the
// store package migrations.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Recent returns up to the last 100 turns of conversation, oldest first.
func (s *SQLStore) Recent(ctx context.Context, conversation string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, text, created_at FROM (
			SELECT id, role, text, created_at
			FROM transcript
			WHERE conversation = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, conversation, fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("history: query transcript: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&role, &t.Text, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("history: scan turn: %w", err)
		}
		t.Role = Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate transcript: %w", err)
	}
	return turns, nil
}

// Append stores one turn.
func (s *SQLStore) Append(ctx context.Context, conversation string, t Turn) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transcript (conversation, role, text, created_at) VALUES (?, ?, ?, ?)
	`, conversation, string(t.Role), t.Text, t.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("history: append turn: %w", err)
	}
	return nil
}

// Reset appends a reset marker. Older turns stay on disk for reference but
// are no longer sent to the model.
func (s *SQLStore) Reset(ctx context.Context, conversation string, at time.Time) error {
	return s.Append(ctx, conversation, Turn{Role: RoleAssistant, Text: ResetSentinel, Timestamp: at})
}

// Conversations returns the number of distinct conversations on record.
func (s *SQLStore) Conversations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT conversation) FROM transcript`).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count conversations: %w", err)
	}
	return n, nil
}

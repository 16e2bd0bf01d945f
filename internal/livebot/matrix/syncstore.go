package matrix

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

var _ mautrix.SyncStore = (*SyncStore)(nil)

// SyncStore persists the sync position in the matrix_sync_state table, one
// row per bot user, so a restart resumes from the last batch instead of
// answering old messages again.
type SyncStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSyncStore returns a SyncStore on db. The store package migrations must
// have been applied.
func NewSyncStore(db *sql.DB) *SyncStore {
	return &SyncStore{db: db, now: time.Now}
}

func (s *SyncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.save(ctx, userID, "filter_id", filterID)
}

func (s *SyncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.load(ctx, userID, "filter_id")
}

func (s *SyncStore) SaveNextBatch(ctx context.Context, userID id.UserID, nextBatchToken string) error {
	return s.save(ctx, userID, "next_batch", nextBatchToken)
}

// LoadNextBatch returns "" before the first sync.
func (s *SyncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.load(ctx, userID, "next_batch")
}

// column is one of the fixed names above, never user input.
func (s *SyncStore) save(ctx context.Context, userID id.UserID, column, value string) error {
	q := fmt.Sprintf(`
		INSERT INTO matrix_sync_state (user_id, %[1]s, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET %[1]s = excluded.%[1]s, updated_at = excluded.updated_at
	`, column)
	if _, err := s.db.ExecContext(ctx, q, userID.String(), value, s.now().UTC()); err != nil {
		return fmt.Errorf("matrix: save %s: %w", column, err)
	}
	return nil
}

func (s *SyncStore) load(ctx context.Context, userID id.UserID, column string) (string, error) {
	var value string
	q := fmt.Sprintf(`SELECT %s FROM matrix_sync_state WHERE user_id = ?`, column)
	err := s.db.QueryRowContext(ctx, q, userID.String()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("matrix: load %s: %w", column, err)
	}
	return value, nil
}

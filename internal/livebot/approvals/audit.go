package approvals

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Audit is the append-only trail of gate transitions. It is never read to
// decide state: the transcript marker is the only source of truth.
type Audit struct {
	db  *sql.DB
	now func() time.Time
}

// NewAudit returns an Audit writing to the gate_audit table of db.
func NewAudit(db *sql.DB) *Audit {
	return &Audit{db: db, now: time.Now}
}

// Record appends one transition and returns its ID.
func (a *Audit) Record(ctx context.Context, conversation, act, paramsJSON string, st Status, detail string) (string, error) {
	id := uuid.NewString()
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO gate_audit (id, conversation, action, params_json, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, conversation, act, paramsJSON, string(st), detail, a.now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to record gate transition: %w", err)
	}
	return id, nil
}

// List returns a conversation's entries, oldest first.
func (a *Audit) List(ctx context.Context, conversation string) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, conversation, action, params_json, status, detail, created_at
		FROM gate_audit
		WHERE conversation = ?
		ORDER BY created_at, rowid
	`, conversation)
	if err != nil {
		return nil, fmt.Errorf("failed to list gate audit: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var st string
		if err := rows.Scan(&e.ID, &e.Conversation, &e.Action, &e.ParamsJSON, &st, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan gate audit: %w", err)
		}
		e.Status = Status(st)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating gate audit: %w", err)
	}
	return out, nil
}

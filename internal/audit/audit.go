// Package audit records admin actions (approvals, rejections,
// soft-deletes, restores) to an append-only log, independent of
// responses.ResponseHistory, which tracks submitted data rather than
// admin intent.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/formwright/formwright/internal/database"
)

// Entry is one recorded admin action.
type Entry struct {
	ID         string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Detail     map[string]any
	CreatedAt  time.Time
}

// Store persists audit entries to _ff_admin_audit_log.
type Store struct {
	db *database.DB
}

// NewStore creates an audit store backed by db.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Record appends an entry to the log. Failures are the caller's concern:
// a failed audit write must never block the admin action it describes,
// so callers typically log and swallow the error rather than propagate it.
func (s *Store) Record(ctx context.Context, actorID, action, targetType, targetID string, detail map[string]any) error {
	if detail == nil {
		detail = map[string]any{}
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO _ff_admin_audit_log (id, actor_id, action, target_type, target_id, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), actorID, action, targetType, targetID, string(detailJSON), time.Now().UTC().Format(time.RFC3339))
	return err
}

// ListForTarget returns audit entries for a single target, most recent first.
func (s *Store) ListForTarget(ctx context.Context, targetType, targetID string) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, action, target_type, target_id, detail, created_at
		FROM _ff_admin_audit_log
		WHERE target_type = ? AND target_id = ?
		ORDER BY created_at DESC
	`, targetType, targetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var detailJSON, createdAt string
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.TargetType, &e.TargetID, &detailJSON, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(detailJSON), &e.Detail); err != nil {
			return nil, err
		}
		e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/formwright/formwright/internal/database"
)

// Store persists FormWorkflow rules, using the same
// document-over-SQLite shape as internal/forms.Store.
type Store struct {
	db *database.DB
}

// NewStore creates a workflow store backed by db.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// CreateInput describes a new workflow rule.
type CreateInput struct {
	Name             string
	TriggerFormID    string
	TriggerCondition string
	Actions          []WorkflowAction
	IsActive         bool
	CreatedBy        string
}

// Create inserts a new workflow. TriggerCondition defaults to "true" when
// empty, matching the spec's "trigger_condition (expression; default True)".
func (s *Store) Create(ctx context.Context, in CreateInput) (*FormWorkflow, error) {
	for _, a := range in.Actions {
		if !IsValidActionType(a.Type) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidActionType, a.Type)
		}
	}

	cond := in.TriggerCondition
	if cond == "" {
		cond = "true"
	}

	now := time.Now().UTC()
	wf := &FormWorkflow{
		ID: uuid.New().String(), Name: in.Name, TriggerFormID: in.TriggerFormID,
		TriggerCondition: cond, Actions: in.Actions, IsActive: in.IsActive,
		CreatedBy: in.CreatedBy, CreatedAt: now, UpdatedAt: now,
	}

	actionsJSON, err := json.Marshal(wf.Actions)
	if err != nil {
		return nil, fmt.Errorf("marshaling actions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO _ff_form_workflows
			(id, name, trigger_form_id, trigger_condition, actions, is_active, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.Name, wf.TriggerFormID, wf.TriggerCondition, string(actionsJSON),
		boolToInt(wf.IsActive), wf.CreatedBy, wf.CreatedAt.Format(time.RFC3339), wf.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting workflow: %w", err)
	}

	return wf, nil
}

const workflowSelectColumns = `SELECT id, name, trigger_form_id, trigger_condition, actions, is_active, created_by, created_at, updated_at`

// Get retrieves a workflow by id.
func (s *Store) Get(ctx context.Context, id string) (*FormWorkflow, error) {
	row := s.db.QueryRowContext(ctx, workflowSelectColumns+` FROM _ff_form_workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting workflow: %w", err)
	}
	return wf, nil
}

// ListActiveByForm loads every active workflow whose trigger_form_id matches
// formID, ordered by created_at ascending. §4.8/REDESIGN FLAGS require this
// ordering be preserved across edits: "first match wins" is a creation-time
// property, not an update-time one, so ORDER BY uses created_at, never
// updated_at.
func (s *Store) ListActiveByForm(ctx context.Context, formID string) ([]*FormWorkflow, error) {
	rows, err := s.db.QueryContext(ctx,
		workflowSelectColumns+` FROM _ff_form_workflows WHERE trigger_form_id = ? AND is_active = 1 ORDER BY created_at ASC`,
		formID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying active workflows: %w", err)
	}
	defer rows.Close()
	return scanWorkflows(rows)
}

// List returns every workflow, most-recently-created first, for admin
// listing views.
func (s *Store) List(ctx context.Context) ([]*FormWorkflow, error) {
	rows, err := s.db.QueryContext(ctx, workflowSelectColumns+` FROM _ff_form_workflows ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying workflows: %w", err)
	}
	defer rows.Close()
	return scanWorkflows(rows)
}

// UpdateInput describes an edit to an existing workflow.
type UpdateInput struct {
	Name             string
	TriggerCondition string
	Actions          []WorkflowAction
	IsActive         bool
}

// Update replaces a workflow's mutable fields. created_at (and thus its
// position in first-match-wins ordering) never changes.
func (s *Store) Update(ctx context.Context, id string, in UpdateInput) (*FormWorkflow, error) {
	for _, a := range in.Actions {
		if !IsValidActionType(a.Type) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidActionType, a.Type)
		}
	}

	actionsJSON, err := json.Marshal(in.Actions)
	if err != nil {
		return nil, fmt.Errorf("marshaling actions: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE _ff_form_workflows
		SET name = ?, trigger_condition = ?, actions = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		in.Name, in.TriggerCondition, string(actionsJSON), boolToInt(in.IsActive), now.Format(time.RFC3339), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	return s.Get(ctx, id)
}

// Delete removes a workflow.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM _ff_form_workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting workflow: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*FormWorkflow, error) {
	var (
		wf                   FormWorkflow
		actionsJSON          string
		isActive             int
		createdAt, updatedAt string
	)

	err := row.Scan(
		&wf.ID, &wf.Name, &wf.TriggerFormID, &wf.TriggerCondition, &actionsJSON,
		&isActive, &wf.CreatedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(actionsJSON), &wf.Actions); err != nil {
		return nil, fmt.Errorf("unmarshaling actions: %w", err)
	}
	wf.IsActive = isActive != 0
	wf.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	wf.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &wf, nil
}

func scanWorkflows(rows *sql.Rows) ([]*FormWorkflow, error) {
	var out []*FormWorkflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning workflow row: %w", err)
		}
		out = append(out, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating workflow rows: %w", err)
	}
	return out, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

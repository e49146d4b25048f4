package responses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/database"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/validator"
)

// Publisher is notified of new or changed responses. internal/realtime.Broker
// implements it; kept as a small interface here rather than an import so this
// package doesn't depend on the WebSocket transport.
type Publisher interface {
	Publish(resp *FormResponse)
}

// Store persists FormResponse documents and their history/comments/saved
// searches, grounded on the same document-over-SQLite shape as
// internal/forms.Store.
type Store struct {
	db        *database.DB
	validator *validator.Validator
	publisher Publisher
}

// NewStore creates a response store backed by db, validating submissions
// with v.
func NewStore(db *database.DB, v *validator.Validator) *Store {
	return &Store{db: db, validator: v}
}

// SetPublisher wires a realtime broker in after construction, avoiding a
// circular import between internal/responses and internal/realtime.
func (s *Store) SetPublisher(p Publisher) {
	s.publisher = p
}

func (s *Store) publish(resp *FormResponse) {
	if s.publisher != nil {
		s.publisher.Publish(resp)
	}
}

// SubmitInput describes a new submission.
type SubmitInput struct {
	Form        *forms.Form
	Version     *forms.FormVersion
	SubmittedBy string // "anonymous" for unauthenticated public submissions
	Payload     map[string]any
	Metadata    map[string]any
	IsDraft     bool
	IsPublic    bool
}

// Submit validates payload against the active version and, on success,
// atomically inserts the FormResponse plus its "create" history entry.
func (s *Store) Submit(ctx context.Context, in SubmitInput) (*FormResponse, []validator.FieldError, error) {
	data, fieldErrs := s.validator.Validate(validator.Input{
		Form: in.Form, Version: in.Version, Payload: in.Payload,
		IsDraft: in.IsDraft, IsPublic: in.IsPublic,
	})
	if len(fieldErrs) > 0 {
		return nil, fieldErrs, ErrValidationFailed
	}

	now := time.Now().UTC()
	resp := &FormResponse{
		ID:          uuid.New().String(),
		FormID:      in.Form.ID,
		Version:     in.Version.Version,
		SubmittedBy: in.SubmittedBy,
		SubmittedAt: now,
		IsDraft:     in.IsDraft,
		Status:      StatusPending,
		Data:        data,
		Metadata:    in.Metadata,
	}

	err := s.db.Transaction(ctx, func(tx *database.Tx) error {
		if err := insertResponse(ctx, tx, resp); err != nil {
			return err
		}
		return insertHistory(ctx, tx, &ResponseHistory{
			ID: uuid.New().String(), ResponseID: resp.ID, FormID: resp.FormID,
			Seq: 1, DataBefore: map[string]any{}, DataAfter: data,
			ChangedBy: in.SubmittedBy, ChangedAt: now, ChangeType: ChangeCreate,
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("submitting response: %w", err)
	}

	log.Info().Str("response_id", resp.ID).Str("form_id", resp.FormID).Msg("response submitted")
	s.publish(resp)
	return resp, nil, nil
}

// UpdateInput describes a revalidated edit to an existing response.
type UpdateInput struct {
	Form      *forms.Form
	Version   *forms.FormVersion
	ActorID   string
	Payload   map[string]any
	IsDraft   bool
	IsPublic  bool
}

// Update revalidates payload and replaces an existing response's data, only
// when actor is the original submitter. Appends an "update" history entry
// with data_before/data_after.
func (s *Store) Update(ctx context.Context, responseID string, in UpdateInput) (*FormResponse, []validator.FieldError, error) {
	existing, err := s.GetByID(ctx, responseID)
	if err != nil {
		return nil, nil, err
	}
	if existing.SubmittedBy != in.ActorID {
		return nil, nil, ErrNotOwner
	}
	if existing.Deleted {
		return nil, nil, ErrAlreadyDeleted
	}

	data, fieldErrs := s.validator.Validate(validator.Input{
		Form: in.Form, Version: in.Version, Payload: in.Payload,
		IsDraft: in.IsDraft, IsPublic: in.IsPublic,
	})
	if len(fieldErrs) > 0 {
		return nil, fieldErrs, ErrValidationFailed
	}

	before := existing.Data
	now := time.Now().UTC()

	err = s.db.Transaction(ctx, func(tx *database.Tx) error {
		dataJSON, err := json.Marshal(data)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE _ff_form_responses SET data = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
			string(dataJSON), in.ActorID, now.Format(time.RFC3339), responseID,
		); err != nil {
			return err
		}

		seq, err := nextHistorySeq(ctx, tx, responseID)
		if err != nil {
			return err
		}
		return insertHistory(ctx, tx, &ResponseHistory{
			ID: uuid.New().String(), ResponseID: responseID, FormID: existing.FormID,
			Seq: seq, DataBefore: before, DataAfter: data,
			ChangedBy: in.ActorID, ChangedAt: now, ChangeType: ChangeUpdate,
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("updating response: %w", err)
	}

	existing.Data = data
	existing.UpdatedBy = in.ActorID
	existing.UpdatedAt = &now
	s.publish(existing)
	return existing, nil, nil
}

// SoftDelete marks a response deleted without removing it, appending a
// "delete" history entry.
func (s *Store) SoftDelete(ctx context.Context, responseID, actorID string) error {
	return s.setDeleted(ctx, responseID, actorID, true, ChangeDelete)
}

// Restore reverses SoftDelete, appending a "restore" history entry.
func (s *Store) Restore(ctx context.Context, responseID, actorID string) error {
	return s.setDeleted(ctx, responseID, actorID, false, ChangeRestore)
}

func (s *Store) setDeleted(ctx context.Context, responseID, actorID string, deleted bool, changeType ChangeType) error {
	existing, err := s.GetByID(ctx, responseID)
	if err != nil {
		return err
	}
	if deleted && existing.Deleted {
		return ErrAlreadyDeleted
	}
	if !deleted && !existing.Deleted {
		return ErrNotDeleted
	}

	now := time.Now().UTC()

	return s.db.Transaction(ctx, func(tx *database.Tx) error {
		if deleted {
			if _, err := tx.ExecContext(ctx,
				`UPDATE _ff_form_responses SET deleted = 1, deleted_by = ?, deleted_at = ? WHERE id = ?`,
				actorID, now.Format(time.RFC3339), responseID,
			); err != nil {
				return err
			}
		} else {
			if _, err := tx.ExecContext(ctx,
				`UPDATE _ff_form_responses SET deleted = 0, deleted_by = NULL, deleted_at = NULL WHERE id = ?`,
				responseID,
			); err != nil {
				return err
			}
		}

		seq, err := nextHistorySeq(ctx, tx, responseID)
		if err != nil {
			return err
		}
		return insertHistory(ctx, tx, &ResponseHistory{
			ID: uuid.New().String(), ResponseID: responseID, FormID: existing.FormID,
			Seq: seq, DataBefore: existing.Data, DataAfter: existing.Data,
			ChangedBy: actorID, ChangedAt: now, ChangeType: changeType,
		})
	})
}

// GetByID retrieves a response regardless of its deleted state.
func (s *Store) GetByID(ctx context.Context, id string) (*FormResponse, error) {
	return scanResponse(s.db.QueryRowContext(ctx, responseSelectColumns+` FROM _ff_form_responses WHERE id = ?`, id))
}

// UpdateStatus persists a new approval status and appends entry to the
// response's status log, atomically. Transition legality, permission checks
// and side effects (webhooks, email) are the caller's responsibility
// (internal/approval) — this method only records the outcome.
func (s *Store) UpdateStatus(ctx context.Context, responseID string, newStatus ResponseStatus, entry StatusLogEntry) (*FormResponse, error) {
	existing, err := s.GetByID(ctx, responseID)
	if err != nil {
		return nil, err
	}

	statusLog := append(append([]StatusLogEntry{}, existing.StatusLog...), entry)
	statusLogJSON, err := json.Marshal(statusLog)
	if err != nil {
		return nil, fmt.Errorf("marshaling status log: %w", err)
	}

	err = s.db.Transaction(ctx, func(tx *database.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE _ff_form_responses SET status = ?, status_log = ?, updated_by = ?, updated_at = ? WHERE id = ?`,
			string(newStatus), string(statusLogJSON), entry.Actor, entry.At.UTC().Format(time.RFC3339), responseID,
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("updating response status: %w", err)
	}

	existing.Status = newStatus
	existing.StatusLog = statusLog
	s.publish(existing)
	return existing, nil
}

// Search performs cursor-based pagination over a form's responses.
// Default behavior excludes deleted=true and is_draft=true rows.
//
// The filter tree addresses field_ids inside the JSON `data` column, which
// is keyed by section_id first (and may hold a list of instance-maps for
// repeatable sections) — a shape SQLite's json_extract can't express with a
// single wildcard path. Rather than maintain a separate flattened-field
// index table, matching rows are fetched by the cheap indexed predicates
// (form_id, deleted, is_draft) and the filter tree is evaluated in Go
// against each row's flattened data; sort and cursor positioning happen
// after that, also in Go. This trades some work for forms with very large
// response counts against not needing a second write path to keep in sync.
func (s *Store) Search(ctx context.Context, f SearchFilter) (*SearchPage, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}

	query := responseSelectColumns + ` FROM _ff_form_responses WHERE form_id = ?`
	args := []any{f.FormID}

	if !f.Deleted {
		query += ` AND deleted = 0`
	}
	if f.IsDraft == nil {
		query += ` AND is_draft = 0`
	} else if *f.IsDraft {
		query += ` AND is_draft = 1`
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching responses: %w", err)
	}
	defer rows.Close()

	var matched []*FormResponse
	for rows.Next() {
		resp, err := scanResponseRows(rows)
		if err != nil {
			return nil, err
		}
		if f.Filter == nil || matchesFilter(*f.Filter, flattenData(resp.Data), resp) {
			matched = append(matched, resp)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortField := sanitizeSortField(f.Sort.Field)
	sortAsc(matched, sortField, f.Sort.Desc)

	start := 0
	if f.Cursor != nil {
		start = indexAfterCursor(matched, sortField, f.Sort.Desc, *f.Cursor)
	}

	end := start + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	if start > len(matched) {
		start = len(matched)
	}

	page := &SearchPage{Responses: matched[start:end]}
	if end < len(matched) {
		last := page.Responses[len(page.Responses)-1]
		page.NextCursor = &Cursor{SortValue: sortValueOf(last, f.Sort.Field), LastID: last.ID}
	}
	return page, nil
}

// ListPaginatedFilter is the offset-based counterpart to Search, used for
// analytics listings that need a page number rather than a cursor.
type ListPaginatedFilter struct {
	FormID  string
	Offset  int
	Limit   int
	Deleted bool
}

// ListPaginated returns a page of non-deleted responses ordered by
// submitted_at descending.
func (s *Store) ListPaginated(ctx context.Context, f ListPaginatedFilter) ([]*FormResponse, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	query := responseSelectColumns + ` FROM _ff_form_responses WHERE form_id = ?`
	if !f.Deleted {
		query += ` AND deleted = 0`
	}
	query += ` ORDER BY submitted_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, f.FormID, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}
	defer rows.Close()

	var out []*FormResponse
	for rows.Next() {
		resp, err := scanResponseRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

// Count returns the number of non-deleted responses for a form, optionally
// restricted to drafts or submitted responses.
func (s *Store) Count(ctx context.Context, formID string, isDraft *bool) (int, error) {
	query := `SELECT COUNT(*) FROM _ff_form_responses WHERE form_id = ? AND deleted = 0`
	args := []any{formID}
	if isDraft != nil {
		query += ` AND is_draft = ?`
		args = append(args, boolToInt(*isDraft))
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting responses: %w", err)
	}
	return count, nil
}

// DataReferencesFile reports whether any response to formID still embeds
// fileID somewhere in its data blob. Used by the storage package's
// orphaned-upload sweep to avoid deleting a file a submitted response
// still points at. A substring match against the raw JSON column is cheap
// and sufficient here since fileIDs are UUIDs unlikely to collide with
// unrelated text.
func (s *Store) DataReferencesFile(ctx context.Context, formID, fileID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM _ff_form_responses WHERE form_id = ? AND data LIKE ?`,
		formID, "%"+fileID+"%",
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking file reference: %w", err)
	}
	return count > 0, nil
}

// DuplicateCheck compares fields against existing non-deleted responses of
// the same form and submitter, returning the id of the first match.
func (s *Store) DuplicateCheck(ctx context.Context, formID, submittedBy string, fields map[string]any) (string, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM _ff_form_responses WHERE form_id = ? AND submitted_by = ? AND deleted = 0`,
		formID, submittedBy,
	)
	if err != nil {
		return "", false, fmt.Errorf("checking duplicates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, dataJSON string
		if err := rows.Scan(&id, &dataJSON); err != nil {
			return "", false, err
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
			continue
		}
		if subsetMatches(fields, flattenData(data)) {
			return id, true, nil
		}
	}
	return "", false, rows.Err()
}

// AddComment attaches a reviewer comment to a response.
func (s *Store) AddComment(ctx context.Context, responseID, authorID, body string) (*ResponseComment, error) {
	comment := &ResponseComment{
		ID: uuid.New().String(), ResponseID: responseID, AuthorID: authorID,
		Body: body, CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _ff_response_comments (id, response_id, author_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		comment.ID, comment.ResponseID, comment.AuthorID, comment.Body, comment.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("adding comment: %w", err)
	}
	return comment, nil
}

// ListComments returns a response's comments oldest first.
func (s *Store) ListComments(ctx context.Context, responseID string) ([]*ResponseComment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, response_id, author_id, body, created_at FROM _ff_response_comments WHERE response_id = ? ORDER BY created_at ASC`,
		responseID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	defer rows.Close()

	var out []*ResponseComment
	for rows.Next() {
		var c ResponseComment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.ResponseID, &c.AuthorID, &c.Body, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// SaveSearch persists a named filter/sort for reuse.
func (s *Store) SaveSearch(ctx context.Context, search SavedSearch) (*SavedSearch, error) {
	search.ID = uuid.New().String()
	search.CreatedAt = time.Now().UTC()

	filterJSON, err := json.Marshal(search.Filter)
	if err != nil {
		return nil, err
	}
	sortJSON, err := json.Marshal(search.Sort)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO _ff_saved_searches (id, user_id, form_id, name, filter, sort, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		search.ID, search.UserID, search.FormID, search.Name, string(filterJSON), string(sortJSON),
		search.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("saving search: %w", err)
	}
	return &search, nil
}

// ListSavedSearches returns a user's saved searches for a form.
func (s *Store) ListSavedSearches(ctx context.Context, userID, formID string) ([]*SavedSearch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, form_id, name, filter, sort, created_at FROM _ff_saved_searches WHERE user_id = ? AND form_id = ? ORDER BY created_at DESC`,
		userID, formID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing saved searches: %w", err)
	}
	defer rows.Close()

	var out []*SavedSearch
	for rows.Next() {
		var search SavedSearch
		var filterJSON, sortJSON, createdAt string
		if err := rows.Scan(&search.ID, &search.UserID, &search.FormID, &search.Name, &filterJSON, &sortJSON, &createdAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(filterJSON), &search.Filter)
		_ = json.Unmarshal([]byte(sortJSON), &search.Sort)
		search.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, &search)
	}
	return out, rows.Err()
}

// ListHistory returns a response's audit trail oldest first.
func (s *Store) ListHistory(ctx context.Context, responseID string) ([]*ResponseHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, response_id, form_id, version, data_before, data_after, changed_by, changed_at, change_type
		 FROM _ff_response_history WHERE response_id = ? ORDER BY version ASC`,
		responseID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var out []*ResponseHistory
	for rows.Next() {
		var h ResponseHistory
		var before, after, changedAt, changeType string
		if err := rows.Scan(&h.ID, &h.ResponseID, &h.FormID, &h.Seq, &before, &after, &h.ChangedBy, &changedAt, &changeType); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(before), &h.DataBefore)
		_ = json.Unmarshal([]byte(after), &h.DataAfter)
		h.ChangedAt, _ = time.Parse(time.RFC3339, changedAt)
		h.ChangeType = ChangeType(changeType)
		out = append(out, &h)
	}
	return out, rows.Err()
}

const responseSelectColumns = `SELECT
	id, form_id, version, submitted_by, submitted_at, updated_by, updated_at,
	deleted, deleted_by, deleted_at, is_draft, status, status_log, data, metadata`

func insertResponse(ctx context.Context, tx *database.Tx, r *FormResponse) error {
	dataJSON, err := json.Marshal(r.Data)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return err
	}
	statusLogJSON, err := json.Marshal(r.StatusLog)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO _ff_form_responses (
			id, form_id, version, submitted_by, submitted_at, is_draft,
			status, status_log, data, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.FormID, r.Version, r.SubmittedBy, r.SubmittedAt.Format(time.RFC3339),
		boolToInt(r.IsDraft), r.Status, string(statusLogJSON), string(dataJSON), string(metaJSON))
	return err
}

func insertHistory(ctx context.Context, tx *database.Tx, h *ResponseHistory) error {
	before, err := json.Marshal(h.DataBefore)
	if err != nil {
		return err
	}
	after, err := json.Marshal(h.DataAfter)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO _ff_response_history (id, response_id, form_id, version, data_before, data_after, changed_by, changed_at, change_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, h.ID, h.ResponseID, h.FormID, h.Seq, string(before), string(after),
		h.ChangedBy, h.ChangedAt.Format(time.RFC3339), h.ChangeType)
	return err
}

func nextHistorySeq(ctx context.Context, tx *database.Tx, responseID string) (int, error) {
	var maxSeq sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT MAX(version) FROM _ff_response_history WHERE response_id = ?`, responseID).Scan(&maxSeq)
	if err != nil {
		return 0, err
	}
	return int(maxSeq.Int64) + 1, nil
}

var allowedSortFields = map[string]bool{
	"submitted_at": true, "updated_at": true, "status": true, "id": true,
}

func sanitizeSortField(field string) string {
	if allowedSortFields[field] {
		return field
	}
	return "submitted_at"
}

// matchesFilter evaluates a filter tree against one response's flattened
// field data and its submitted_at (for date_range leaves).
func matchesFilter(f Filter, flat map[string]any, resp *FormResponse) bool {
	switch {
	case f.DateRange != nil:
		if f.DateRange.From != nil && resp.SubmittedAt.Before(*f.DateRange.From) {
			return false
		}
		if f.DateRange.To != nil && resp.SubmittedAt.After(*f.DateRange.To) {
			return false
		}
		return true

	case len(f.And) > 0:
		for _, sub := range f.And {
			if !matchesFilter(sub, flat, resp) {
				return false
			}
		}
		return true

	case len(f.Or) > 0:
		for _, sub := range f.Or {
			if matchesFilter(sub, flat, resp) {
				return true
			}
		}
		return false

	case f.Not != nil:
		return !matchesFilter(*f.Not, flat, resp)

	case f.IsLeaf():
		return matchesLeaf(f, flat)

	default:
		return true
	}
}

func matchesLeaf(f Filter, flat map[string]any) bool {
	actual, present := flat[f.FieldID]

	switch f.Op {
	case OpEq:
		return present && compareValues(actual, f.Value) == 0
	case OpNe:
		return !present || compareValues(actual, f.Value) != 0
	case OpGt:
		return present && compareValues(actual, f.Value) > 0
	case OpGte:
		return present && compareValues(actual, f.Value) >= 0
	case OpLt:
		return present && compareValues(actual, f.Value) < 0
	case OpLte:
		return present && compareValues(actual, f.Value) <= 0
	case OpIContains:
		return present && strings.Contains(strings.ToLower(fmt.Sprint(actual)), strings.ToLower(fmt.Sprint(f.Value)))
	default:
		return false
	}
}

// compareValues compares two dynamically-typed JSON values, preferring a
// numeric comparison when both sides parse as numbers and falling back to
// string comparison otherwise.
func compareValues(a, b any) int {
	if af, aok := toComparableFloat(a); aok {
		if bf, bok := toComparableFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toComparableFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func sortAsc(items []*FormResponse, field string, desc bool) {
	sort.SliceStable(items, func(i, j int) bool {
		vi, vj := sortValueOf(items[i], field), sortValueOf(items[j], field)
		cmp := compareValues(vi, vj)
		if cmp == 0 {
			cmp = strings.Compare(items[i].ID, items[j].ID)
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

// indexAfterCursor returns the index of the first item strictly past the
// cursor position in an already-sorted slice.
func indexAfterCursor(items []*FormResponse, field string, desc bool, cursor Cursor) int {
	for i, item := range items {
		cmp := compareValues(sortValueOf(item, field), cursor.SortValue)
		if cmp == 0 {
			cmp = strings.Compare(item.ID, cursor.LastID)
		}
		past := cmp > 0
		if desc {
			past = cmp < 0
		}
		if past {
			return i
		}
	}
	return len(items)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// FlattenData merges a FormResponse's section-keyed Data into a single
// field_id -> value map, the same shape the validator builds internally
// for condition evaluation. Exported for C8's workflow trigger_condition
// context, which needs the same flattening after a response is persisted.
func FlattenData(data map[string]any) map[string]any {
	return flattenData(data)
}

func flattenData(data map[string]any) map[string]any {
	flat := make(map[string]any)
	for _, v := range data {
		if section, ok := v.(map[string]any); ok {
			for k, fv := range section {
				flat[k] = fv
			}
		}
	}
	return flat
}

func subsetMatches(subset, full map[string]any) bool {
	for k, v := range subset {
		if fmt.Sprint(full[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func sortValueOf(r *FormResponse, field string) any {
	switch field {
	case "updated_at":
		if r.UpdatedAt != nil {
			return r.UpdatedAt.Format(time.RFC3339)
		}
		return ""
	case "status":
		return string(r.Status)
	case "id":
		return r.ID
	default:
		return r.SubmittedAt.Format(time.RFC3339)
	}
}

func scanResponse(row *sql.Row) (*FormResponse, error) {
	resp, err := scanResponseGeneric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return resp, err
}

func scanResponseRows(rows *sql.Rows) (*FormResponse, error) {
	return scanResponseGeneric(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponseGeneric(row rowScanner) (*FormResponse, error) {
	var (
		r                                       FormResponse
		updatedBy, deletedBy                    sql.NullString
		updatedAt, deletedAt                    sql.NullString
		deletedInt, isDraftInt                  int
		statusLogJSON, dataJSON, metadataJSON   string
		submittedAt                             string
	)

	err := row.Scan(
		&r.ID, &r.FormID, &r.Version, &r.SubmittedBy, &submittedAt, &updatedBy, &updatedAt,
		&deletedInt, &deletedBy, &deletedAt, &isDraftInt, &r.Status, &statusLogJSON, &dataJSON, &metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	r.SubmittedAt, _ = time.Parse(time.RFC3339, submittedAt)
	r.Deleted = deletedInt != 0
	r.IsDraft = isDraftInt != 0
	r.UpdatedBy = updatedBy.String
	r.DeletedBy = deletedBy.String

	if updatedAt.Valid {
		if t, err := time.Parse(time.RFC3339, updatedAt.String); err == nil {
			r.UpdatedAt = &t
		}
	}
	if deletedAt.Valid {
		if t, err := time.Parse(time.RFC3339, deletedAt.String); err == nil {
			r.DeletedAt = &t
		}
	}

	_ = json.Unmarshal([]byte(statusLogJSON), &r.StatusLog)
	_ = json.Unmarshal([]byte(dataJSON), &r.Data)
	_ = json.Unmarshal([]byte(metadataJSON), &r.Metadata)

	return &r, nil
}

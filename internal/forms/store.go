package forms

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
)

// Store persists Form and FormVersion documents against _ff_forms and
// _ff_form_versions. Sections/translations/ACLs are stored as JSON TEXT
// columns, grounded on the same document-over-SQLite pattern the teacher
// uses for file/upload metadata.
type Store struct {
	db *database.DB
}

// NewStore creates a form store backed by db.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// CreateFormInput describes a new form. The creator is implicitly added to
// Editors.
type CreateFormInput struct {
	Title              string
	Slug               string
	CreatedBy          string
	IsPublic           bool
	ExpiresAt          *time.Time
	Editors            []string
	Viewers            []string
	Submitters         []string
	SupportedLanguages []string
	DefaultLanguage    string
	NotificationEmails []string
}

// CreateForm creates a draft form with no versions yet; CreateVersion must
// be called at least once before the form can be published.
func (s *Store) CreateForm(ctx context.Context, input CreateFormInput) (*Form, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, errors.New("title is required")
	}
	if strings.TrimSpace(input.Slug) == "" {
		return nil, errors.New("slug is required")
	}

	editors := ensureContains(input.Editors, input.CreatedBy)

	now := time.Now().UTC()
	form := &Form{
		ID:                 uuid.New().String(),
		Title:              input.Title,
		Slug:               input.Slug,
		CreatedBy:          input.CreatedBy,
		Status:             StatusDraft,
		IsPublic:           input.IsPublic,
		ExpiresAt:          input.ExpiresAt,
		Editors:            editors,
		Viewers:            input.Viewers,
		Submitters:         input.Submitters,
		SupportedLanguages: input.SupportedLanguages,
		DefaultLanguage:    input.DefaultLanguage,
		NotificationEmails: input.NotificationEmails,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO _ff_forms (
			id, title, slug, created_by, status, is_public, expires_at,
			editors, viewers, submitters, supported_languages, default_language,
			webhooks, notification_emails, active_version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '[]', ?, '', ?, ?)
	`,
		form.ID, form.Title, form.Slug, form.CreatedBy, form.Status, boolToInt(form.IsPublic),
		formatNullableTime(form.ExpiresAt), jsonStrings(editors), jsonStrings(form.Viewers),
		jsonStrings(form.Submitters), jsonStrings(form.SupportedLanguages), form.DefaultLanguage,
		jsonStrings(form.NotificationEmails), now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("creating form: %w", err)
	}

	log.Info().Str("form_id", form.ID).Str("slug", form.Slug).Msg("form created")
	return form, nil
}

const formSelectColumns = `SELECT
	id, title, slug, created_by, status, is_public, expires_at, editors,
	viewers, submitters, supported_languages, default_language, webhooks,
	notification_emails, active_version, created_at, updated_at`

// GetForm retrieves a form by id.
func (s *Store) GetForm(ctx context.Context, id string) (*Form, error) {
	return scanForm(s.db.QueryRowContext(ctx, formSelectColumns+` FROM _ff_forms WHERE id = ?`, id))
}

// GetFormBySlug retrieves a form by its unique slug.
func (s *Store) GetFormBySlug(ctx context.Context, slug string) (*Form, error) {
	return scanForm(s.db.QueryRowContext(ctx, formSelectColumns+` FROM _ff_forms WHERE slug = ?`, slug))
}

// ListFormsFilter narrows ListForms. Zero values are "no filter".
type ListFormsFilter struct {
	Status    Status
	CreatedBy string
}

// ListForms returns forms matching filter, newest first.
func (s *Store) ListForms(ctx context.Context, filter ListFormsFilter) ([]*Form, error) {
	query := formSelectColumns + ` FROM _ff_forms WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.CreatedBy != "" {
		query += ` AND created_by = ?`
		args = append(args, filter.CreatedBy)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing forms: %w", err)
	}
	defer rows.Close()

	var out []*Form
	for rows.Next() {
		form, err := scanFormRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, form)
	}
	return out, rows.Err()
}

// UpdateFormInput patches mutable Form fields. Nil pointers leave the field
// unchanged.
type UpdateFormInput struct {
	Title              *string
	IsPublic           *bool
	ExpiresAt          **time.Time
	Editors            *[]string
	Viewers            *[]string
	Submitters         *[]string
	SupportedLanguages *[]string
	DefaultLanguage    *string
	Webhooks           *[]Webhook
	NotificationEmails *[]string
}

// UpdateForm applies a partial update to a form's non-lifecycle fields.
func (s *Store) UpdateForm(ctx context.Context, id string, input UpdateFormInput) (*Form, error) {
	form, err := s.GetForm(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		form.Title = *input.Title
	}
	if input.IsPublic != nil {
		form.IsPublic = *input.IsPublic
	}
	if input.ExpiresAt != nil {
		form.ExpiresAt = *input.ExpiresAt
	}
	if input.Editors != nil {
		form.Editors = ensureContains(*input.Editors, form.CreatedBy)
	}
	if input.Viewers != nil {
		form.Viewers = *input.Viewers
	}
	if input.Submitters != nil {
		form.Submitters = *input.Submitters
	}
	if input.SupportedLanguages != nil {
		form.SupportedLanguages = *input.SupportedLanguages
	}
	if input.DefaultLanguage != nil {
		form.DefaultLanguage = *input.DefaultLanguage
	}
	if input.Webhooks != nil {
		form.Webhooks = *input.Webhooks
	}
	if input.NotificationEmails != nil {
		form.NotificationEmails = *input.NotificationEmails
	}

	form.UpdatedAt = time.Now().UTC()

	webhooksJSON, err := json.Marshal(form.Webhooks)
	if err != nil {
		return nil, fmt.Errorf("marshaling webhooks: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE _ff_forms SET
			title = ?, is_public = ?, expires_at = ?, editors = ?, viewers = ?,
			submitters = ?, supported_languages = ?, default_language = ?,
			webhooks = ?, notification_emails = ?, updated_at = ?
		WHERE id = ?
	`,
		form.Title, boolToInt(form.IsPublic), formatNullableTime(form.ExpiresAt),
		jsonStrings(form.Editors), jsonStrings(form.Viewers), jsonStrings(form.Submitters),
		jsonStrings(form.SupportedLanguages), form.DefaultLanguage, string(webhooksJSON),
		jsonStrings(form.NotificationEmails), form.UpdatedAt.Format(time.RFC3339), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating form: %w", err)
	}

	return form, nil
}

// TransitionStatus moves a form to a new status if the transition is legal
// per the draft<->published->archived->draft transition table.
func (s *Store) TransitionStatus(ctx context.Context, id string, to Status) (*Form, error) {
	form, err := s.GetForm(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(form.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, form.Status, to)
	}

	if to == StatusPublished && form.ActiveVersion == "" {
		return nil, ErrNoVersions
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `UPDATE _ff_forms SET status = ?, updated_at = ? WHERE id = ?`,
		to, now.Format(time.RFC3339), id)
	if err != nil {
		return nil, fmt.Errorf("updating form status: %w", err)
	}

	from := form.Status
	form.Status = to
	form.UpdatedAt = now
	log.Info().Str("form_id", id).Str("from", string(from)).Str("to", string(to)).Msg("form status transitioned")
	return form, nil
}

// DeleteForm hard-deletes a form. Foreign-key cascades remove its versions,
// responses, response history and comments; saved searches on the form are
// not removed.
func (s *Store) DeleteForm(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM _ff_forms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting form: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateVersionInput describes a new immutable version snapshot.
type CreateVersionInput struct {
	Version      string
	CreatedBy    string
	Sections     []Section
	Translations map[string]LanguageOverrides
}

// CreateVersion appends a new FormVersion to a form. Section/question/option
// ids within the version must be non-empty and unique; their format is not
// checked.
func (s *Store) CreateVersion(ctx context.Context, formID string, input CreateVersionInput) (*FormVersion, error) {
	if err := validateUniqueIDs(input.Sections); err != nil {
		return nil, err
	}

	if _, err := s.GetForm(ctx, formID); err != nil {
		return nil, err
	}

	sectionsJSON, err := json.Marshal(input.Sections)
	if err != nil {
		return nil, fmt.Errorf("marshaling sections: %w", err)
	}
	translationsJSON, err := json.Marshal(input.Translations)
	if err != nil {
		return nil, fmt.Errorf("marshaling translations: %w", err)
	}

	now := time.Now().UTC()
	fv := &FormVersion{
		ID:           uuid.New().String(),
		FormID:       formID,
		Version:      input.Version,
		CreatedBy:    input.CreatedBy,
		CreatedAt:    now,
		Sections:     input.Sections,
		Translations: input.Translations,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO _ff_form_versions (id, form_id, version, created_by, created_at, sections, translations)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, fv.ID, fv.FormID, fv.Version, fv.CreatedBy, now.Format(time.RFC3339), string(sectionsJSON), string(translationsJSON))
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateVersion, input.Version)
		}
		return nil, fmt.Errorf("creating form version: %w", err)
	}

	return fv, nil
}

// GetVersion retrieves a specific version of a form.
func (s *Store) GetVersion(ctx context.Context, formID, version string) (*FormVersion, error) {
	return scanVersion(s.db.QueryRowContext(ctx, `
		SELECT id, form_id, version, created_by, created_at, sections, translations
		FROM _ff_form_versions WHERE form_id = ? AND version = ?
	`, formID, version))
}

// GetActiveVersion retrieves the version currently pinned as active_version.
func (s *Store) GetActiveVersion(ctx context.Context, formID string) (*FormVersion, error) {
	form, err := s.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	if form.ActiveVersion == "" {
		return nil, ErrNoVersions
	}
	return s.GetVersion(ctx, formID, form.ActiveVersion)
}

// ActivateVersion sets a form's active_version. The version must already
// exist for this form.
func (s *Store) ActivateVersion(ctx context.Context, formID, version string) error {
	if _, err := s.GetVersion(ctx, formID, version); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE _ff_forms SET active_version = ?, updated_at = ? WHERE id = ?`,
		version, time.Now().UTC().Format(time.RFC3339), formID,
	)
	if err != nil {
		return fmt.Errorf("activating version: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ReorderSections rewrites Order on a version's sections to match
// orderedIDs, which must be a permutation of the existing section ids.
func (s *Store) ReorderSections(ctx context.Context, formID, version string, orderedIDs []string) error {
	fv, err := s.GetVersion(ctx, formID, version)
	if err != nil {
		return err
	}

	byID := make(map[string]*Section, len(fv.Sections))
	for i := range fv.Sections {
		byID[fv.Sections[i].ID] = &fv.Sections[i]
	}
	if len(orderedIDs) != len(byID) {
		return fmt.Errorf("%w: reorder list has %d ids, section has %d", ErrOrderMismatch, len(orderedIDs), len(byID))
	}

	for i, id := range orderedIDs {
		sec, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: unknown section id %q", ErrOrderMismatch, id)
		}
		sec.Order = i
	}

	sort.Slice(fv.Sections, func(i, j int) bool { return fv.Sections[i].Order < fv.Sections[j].Order })
	return s.saveSections(ctx, fv)
}

// ReorderQuestions rewrites Order on a section's questions to match
// orderedIDs.
func (s *Store) ReorderQuestions(ctx context.Context, formID, version, sectionID string, orderedIDs []string) error {
	fv, err := s.GetVersion(ctx, formID, version)
	if err != nil {
		return err
	}

	var section *Section
	for i := range fv.Sections {
		if fv.Sections[i].ID == sectionID {
			section = &fv.Sections[i]
			break
		}
	}
	if section == nil {
		return fmt.Errorf("unknown section id %q", sectionID)
	}

	byID := make(map[string]*Question, len(section.Questions))
	for i := range section.Questions {
		byID[section.Questions[i].ID] = &section.Questions[i]
	}
	if len(orderedIDs) != len(byID) {
		return fmt.Errorf("%w: reorder list has %d ids, section has %d questions", ErrOrderMismatch, len(orderedIDs), len(byID))
	}

	for i, id := range orderedIDs {
		q, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: unknown question id %q", ErrOrderMismatch, id)
		}
		q.Order = i
	}

	sort.Slice(section.Questions, func(i, j int) bool { return section.Questions[i].Order < section.Questions[j].Order })
	return s.saveSections(ctx, fv)
}

// ImportOptions replaces a question's option list wholesale, e.g. from a
// bulk CSV/JSON import.
func (s *Store) ImportOptions(ctx context.Context, formID, version, questionID string, options []Option) error {
	fv, err := s.GetVersion(ctx, formID, version)
	if err != nil {
		return err
	}

	found := false
	for si := range fv.Sections {
		for qi := range fv.Sections[si].Questions {
			if fv.Sections[si].Questions[qi].ID == questionID {
				fv.Sections[si].Questions[qi].Options = options
				found = true
				break
			}
		}
	}
	if !found {
		return fmt.Errorf("unknown question id %q", questionID)
	}

	return s.saveSections(ctx, fv)
}

// UpsertTranslations merges language overrides into a version's
// translations map for lang, replacing any existing overrides for lang.
func (s *Store) UpsertTranslations(ctx context.Context, formID, version, lang string, overrides LanguageOverrides) error {
	fv, err := s.GetVersion(ctx, formID, version)
	if err != nil {
		return err
	}

	if fv.Translations == nil {
		fv.Translations = make(map[string]LanguageOverrides)
	}
	fv.Translations[lang] = overrides

	translationsJSON, err := json.Marshal(fv.Translations)
	if err != nil {
		return fmt.Errorf("marshaling translations: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE _ff_form_versions SET translations = ? WHERE id = ?`,
		string(translationsJSON), fv.ID,
	)
	return err
}

func (s *Store) saveSections(ctx context.Context, fv *FormVersion) error {
	sectionsJSON, err := json.Marshal(fv.Sections)
	if err != nil {
		return fmt.Errorf("marshaling sections: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE _ff_form_versions SET sections = ? WHERE id = ?`, string(sectionsJSON), fv.ID)
	return err
}

func validateUniqueIDs(sections []Section) error {
	seen := make(map[string]bool)
	for _, sec := range sections {
		if sec.ID == "" || seen[sec.ID] {
			return ErrDuplicateElementID
		}
		seen[sec.ID] = true
		for _, q := range sec.Questions {
			if q.ID == "" || seen[q.ID] {
				return ErrDuplicateElementID
			}
			seen[q.ID] = true
			for _, opt := range q.Options {
				if opt.ID == "" || seen[opt.ID] {
					return ErrDuplicateElementID
				}
				seen[opt.ID] = true
			}
		}
	}
	return nil
}

func ensureContains(list []string, value string) []string {
	if value == "" {
		return list
	}
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(append([]string{}, list...), value)
}

func jsonStrings(vals []string) string {
	if vals == nil {
		vals = []string{}
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func parseJSONStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanForm(row *sql.Row) (*Form, error) {
	f, err := scanFormGeneric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

func scanFormRows(rows *sql.Rows) (*Form, error) {
	return scanFormGeneric(rows)
}

func scanFormGeneric(row rowScanner) (*Form, error) {
	var (
		f                                                                     Form
		isPublic                                                             int
		expiresAt                                                            sql.NullString
		editors, viewers, submitters, supportedLanguages, notificationEmails string
		webhooksJSON                                                         string
		createdAt, updatedAt                                                 string
	)

	err := row.Scan(
		&f.ID, &f.Title, &f.Slug, &f.CreatedBy, &f.Status, &isPublic, &expiresAt,
		&editors, &viewers, &submitters, &supportedLanguages, &f.DefaultLanguage,
		&webhooksJSON, &notificationEmails, &f.ActiveVersion, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.IsPublic = isPublic != 0
	f.Editors = parseJSONStrings(editors)
	f.Viewers = parseJSONStrings(viewers)
	f.Submitters = parseJSONStrings(submitters)
	f.SupportedLanguages = parseJSONStrings(supportedLanguages)
	f.NotificationEmails = parseJSONStrings(notificationEmails)
	_ = json.Unmarshal([]byte(webhooksJSON), &f.Webhooks)

	if expiresAt.Valid {
		if t, parseErr := time.Parse(time.RFC3339, expiresAt.String); parseErr == nil {
			f.ExpiresAt = &t
		}
	}
	f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &f, nil
}

func scanVersion(row *sql.Row) (*FormVersion, error) {
	var (
		fv                        FormVersion
		createdAt                 string
		sectionsJSON, translJSON string
	)

	err := row.Scan(&fv.ID, &fv.FormID, &fv.Version, &fv.CreatedBy, &createdAt, &sectionsJSON, &translJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning form version: %w", err)
	}

	fv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	_ = json.Unmarshal([]byte(sectionsJSON), &fv.Sections)
	_ = json.Unmarshal([]byte(translJSON), &fv.Translations)

	return &fv, nil
}

package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"github.com/formwright/formwright/internal/config"
	"github.com/formwright/formwright/internal/database"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/responses"
	"github.com/formwright/formwright/internal/validator"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	tmpDir := t.TempDir()
	db, err := database.Open(&config.DatabaseConfig{Path: tmpDir + "/test.db"})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func intakeForm(t *testing.T, db *database.DB, slug string) (*forms.Form, *forms.FormVersion) {
	t.Helper()
	ctx := context.Background()
	store := forms.NewStore(db)

	form, err := store.CreateForm(ctx, forms.CreateFormInput{Title: "Intake", Slug: slug, CreatedBy: "owner", IsPublic: true})
	if err != nil {
		t.Fatalf("CreateForm: %v", err)
	}
	version, err := store.CreateVersion(ctx, form.ID, forms.CreateVersionInput{
		Version: "v1", CreatedBy: "owner",
		Sections: []forms.Section{{
			ID: "s1", Title: "Basics", Order: 0,
			Questions: []forms.Question{
				{ID: "name", Label: "Name", FieldType: forms.FieldInput, Order: 0, IsRequired: true},
				{ID: "toppings", Label: "Toppings", FieldType: forms.FieldCheckbox, Order: 1, Options: []forms.Option{
					{ID: "o1", OptionLabel: "Cheese", OptionValue: "cheese"},
					{ID: "o2", OptionLabel: "Olives", OptionValue: "olives"},
				}},
			},
		}},
	})
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	if err := store.ActivateVersion(ctx, form.ID, "v1"); err != nil {
		t.Fatalf("ActivateVersion: %v", err)
	}
	form, err = store.GetForm(ctx, form.ID)
	if err != nil {
		t.Fatalf("GetForm: %v", err)
	}
	return form, version
}

func submit(t *testing.T, store *responses.Store, form *forms.Form, version *forms.FormVersion, name string, toppings []any) *responses.FormResponse {
	t.Helper()
	ctx := context.Background()
	resp, fieldErrs, err := store.Submit(ctx, responses.SubmitInput{
		Form: form, Version: version, SubmittedBy: "ada@example.com", IsPublic: true,
		Payload: map[string]any{"s1": map[string]any{"name": name, "toppings": toppings}},
	})
	if err != nil || len(fieldErrs) > 0 {
		t.Fatalf("Submit: %v %v", err, fieldErrs)
	}
	return resp
}

func TestCSV_FlattensSectionsAndJoinsCheckboxArrays(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	form, version := intakeForm(t, db, "intake")
	respStore := responses.NewStore(db, validator.New())
	formStore := forms.NewStore(db)
	exp := NewExporter(formStore, respStore)

	submit(t, respStore, form, version, "Ada", []any{"cheese", "olives"})

	data, err := exp.CSV(ctx, form.ID)
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parsing csv: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header + 1 row, got %d rows", len(rows))
	}
	header := rows[0]
	if header[0] != "Basics.Name" || header[1] != "Basics.Toppings" {
		t.Errorf("unexpected header: %v", header)
	}
	if header[2] != "response_id" || header[3] != "submitted_by" {
		t.Errorf("unexpected trailing header: %v", header)
	}
	row := rows[1]
	if row[0] != "Ada" {
		t.Errorf("expected name cell 'Ada', got %q", row[0])
	}
	if row[1] != "cheese|olives" {
		t.Errorf("expected pipe-joined checkbox cell, got %q", row[1])
	}
}

func TestJSON_IncludesFormAndResponsesExcludesDrafts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	form, version := intakeForm(t, db, "intake")
	respStore := responses.NewStore(db, validator.New())
	formStore := forms.NewStore(db)
	exp := NewExporter(formStore, respStore)

	submit(t, respStore, form, version, "Ada", nil)
	if _, _, err := respStore.Submit(ctx, responses.SubmitInput{
		Form: form, Version: version, SubmittedBy: "ada@example.com", IsPublic: true, IsDraft: true,
		Payload: map[string]any{"s1": map[string]any{"name": "Draft"}},
	}); err != nil {
		t.Fatalf("Submit draft: %v", err)
	}

	data, err := exp.JSON(ctx, form.ID)
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}

	var doc JSONExport
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshaling export: %v", err)
	}
	if doc.Form.ID != form.ID {
		t.Errorf("expected form %s, got %s", form.ID, doc.Form.ID)
	}
	if len(doc.Responses) != 1 {
		t.Fatalf("expected 1 non-draft response, got %d", len(doc.Responses))
	}
}

func TestBulk_ProducesZipWithOnePerFormCSV(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	formA, versionA := intakeForm(t, db, "form-a")
	formB, versionB := intakeForm(t, db, "form-b")
	respStore := responses.NewStore(db, validator.New())
	formStore := forms.NewStore(db)
	exp := NewExporter(formStore, respStore)

	submit(t, respStore, formA, versionA, "Ada", nil)
	submit(t, respStore, formB, versionB, "Grace", nil)

	data, err := exp.Bulk(ctx, []string{formA.ID, formB.ID})
	if err != nil {
		t.Fatalf("Bulk: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("reading zip with stdlib archive/zip: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	if !names["form-a.csv"] || !names["form-b.csv"] {
		t.Fatalf("expected form-a.csv and form-b.csv in archive, got %v", names)
	}
}

func TestFormatCell_HandlesNilAndScalars(t *testing.T) {
	if got := formatCell(nil); got != "" {
		t.Errorf("expected empty string for nil, got %q", got)
	}
	if got := formatCell("x"); got != "x" {
		t.Errorf("expected passthrough for string, got %q", got)
	}
	if got := formatCell([]any{"a", "b"}); got != "a|b" {
		t.Errorf("expected pipe-joined, got %q", got)
	}
	if got := strings.TrimSpace(formatCell(3.0)); got != "3" {
		t.Errorf("expected numeric formatting, got %q", got)
	}
}

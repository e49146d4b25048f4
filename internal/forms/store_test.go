package forms

import (
	"context"
	"errors"
	"testing"

	"github.com/formwright/formwright/internal/config"
	"github.com/formwright/formwright/internal/database"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := &config.DatabaseConfig{Path: tmpDir + "/test.db"}

	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func newQuestion(id string, order int) Question {
	return Question{ID: id, Label: "Label " + id, FieldType: FieldInput, Order: order}
}

func newSection(id string, order int, questions ...Question) Section {
	return Section{ID: id, Title: "Section " + id, Order: order, Questions: questions}
}

func TestStore_CreateAndGetForm(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, err := store.CreateForm(ctx, CreateFormInput{
		Title:     "Patient Intake",
		Slug:      "patient-intake",
		CreatedBy: "user-1",
	})
	if err != nil {
		t.Fatalf("CreateForm failed: %v", err)
	}
	if form.Status != StatusDraft {
		t.Errorf("expected new form to be draft, got %s", form.Status)
	}
	if len(form.Editors) != 1 || form.Editors[0] != "user-1" {
		t.Errorf("expected creator to be auto-added as editor, got %v", form.Editors)
	}

	got, err := store.GetForm(ctx, form.ID)
	if err != nil {
		t.Fatalf("GetForm failed: %v", err)
	}
	if got.Title != "Patient Intake" || got.Slug != "patient-intake" {
		t.Errorf("unexpected form: %+v", got)
	}

	bySlug, err := store.GetFormBySlug(ctx, "patient-intake")
	if err != nil {
		t.Fatalf("GetFormBySlug failed: %v", err)
	}
	if bySlug.ID != form.ID {
		t.Errorf("expected GetFormBySlug to find the same form")
	}
}

func TestStore_CreateForm_DuplicateSlugRejected(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	if _, err := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "dup", CreatedBy: "u1"}); err != nil {
		t.Fatalf("CreateForm failed: %v", err)
	}

	_, err := store.CreateForm(ctx, CreateFormInput{Title: "B", Slug: "dup", CreatedBy: "u2"})
	if !errors.Is(err, ErrSlugTaken) {
		t.Errorf("expected ErrSlugTaken, got %v", err)
	}
}

func TestStore_GetForm_NotFound(t *testing.T) {
	store := NewStore(testDB(t))

	_, err := store.GetForm(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListForms_FiltersByStatusAndCreator(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	f1, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "a", CreatedBy: "alice"})
	_, _ = store.CreateForm(ctx, CreateFormInput{Title: "B", Slug: "b", CreatedBy: "bob"})

	version := CreateVersionInput{Version: "v1", CreatedBy: "alice", Sections: []Section{newSection("s1", 0, newQuestion("q1", 0))}}
	if _, err := store.CreateVersion(ctx, f1.ID, version); err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
	if err := store.ActivateVersion(ctx, f1.ID, "v1"); err != nil {
		t.Fatalf("ActivateVersion failed: %v", err)
	}
	if _, err := store.TransitionStatus(ctx, f1.ID, StatusPublished); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}

	published, err := store.ListForms(ctx, ListFormsFilter{Status: StatusPublished})
	if err != nil {
		t.Fatalf("ListForms failed: %v", err)
	}
	if len(published) != 1 || published[0].ID != f1.ID {
		t.Errorf("expected exactly the published form, got %d results", len(published))
	}

	byBob, err := store.ListForms(ctx, ListFormsFilter{CreatedBy: "bob"})
	if err != nil {
		t.Fatalf("ListForms failed: %v", err)
	}
	if len(byBob) != 1 || byBob[0].CreatedBy != "bob" {
		t.Errorf("expected exactly bob's form, got %d results", len(byBob))
	}
}

func TestStore_UpdateForm(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "Old Title", Slug: "update-me", CreatedBy: "u1"})

	newTitle := "New Title"
	isPublic := true
	updated, err := store.UpdateForm(ctx, form.ID, UpdateFormInput{Title: &newTitle, IsPublic: &isPublic})
	if err != nil {
		t.Fatalf("UpdateForm failed: %v", err)
	}
	if updated.Title != "New Title" || !updated.IsPublic {
		t.Errorf("update did not apply: %+v", updated)
	}

	reloaded, err := store.GetForm(ctx, form.ID)
	if err != nil {
		t.Fatalf("GetForm failed: %v", err)
	}
	if reloaded.Title != "New Title" || !reloaded.IsPublic {
		t.Errorf("update was not persisted: %+v", reloaded)
	}
}

func TestStore_TransitionStatus_RequiresActiveVersionToPublish(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "no-version", CreatedBy: "u1"})

	_, err := store.TransitionStatus(ctx, form.ID, StatusPublished)
	if !errors.Is(err, ErrNoVersions) {
		t.Errorf("expected ErrNoVersions, got %v", err)
	}
}

func TestStore_TransitionStatus_RejectsIllegalTransition(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "illegal", CreatedBy: "u1"})

	_, err := store.TransitionStatus(ctx, form.ID, StatusArchived)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for draft->archived, got %v", err)
	}
}

func TestStore_TransitionStatus_FullLifecycle(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "lifecycle", CreatedBy: "u1"})
	_, err := store.CreateVersion(ctx, form.ID, CreateVersionInput{
		Version: "v1", CreatedBy: "u1",
		Sections: []Section{newSection("s1", 0, newQuestion("q1", 0))},
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
	if err := store.ActivateVersion(ctx, form.ID, "v1"); err != nil {
		t.Fatalf("ActivateVersion failed: %v", err)
	}

	if _, err := store.TransitionStatus(ctx, form.ID, StatusPublished); err != nil {
		t.Fatalf("draft->published failed: %v", err)
	}
	if _, err := store.TransitionStatus(ctx, form.ID, StatusArchived); err != nil {
		t.Fatalf("published->archived failed: %v", err)
	}
	if _, err := store.TransitionStatus(ctx, form.ID, StatusDraft); err != nil {
		t.Fatalf("archived->draft failed: %v", err)
	}
	// active_version persists across transitions, so re-publishing a draft
	// that still has one should succeed without recreating a version.
	if _, err := store.TransitionStatus(ctx, form.ID, StatusPublished); err != nil {
		t.Fatalf("draft->published (with existing active_version) failed: %v", err)
	}
}

func TestStore_DeleteForm(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "delete-me", CreatedBy: "u1"})

	if err := store.DeleteForm(ctx, form.ID); err != nil {
		t.Fatalf("DeleteForm failed: %v", err)
	}

	_, err := store.GetForm(ctx, form.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStore_DeleteForm_NotFound(t *testing.T) {
	store := NewStore(testDB(t))

	err := store.DeleteForm(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_CreateVersion_RejectsDuplicateElementIDs(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "dup-ids", CreatedBy: "u1"})

	_, err := store.CreateVersion(ctx, form.ID, CreateVersionInput{
		Version: "v1", CreatedBy: "u1",
		Sections: []Section{
			newSection("s1", 0, newQuestion("q1", 0)),
			newSection("s2", 1, newQuestion("q1", 0)),
		},
	})
	if !errors.Is(err, ErrDuplicateElementID) {
		t.Errorf("expected ErrDuplicateElementID, got %v", err)
	}
}

func TestStore_CreateVersion_RejectsDuplicateVersion(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "dup-version", CreatedBy: "u1"})

	input := CreateVersionInput{
		Version: "v1", CreatedBy: "u1",
		Sections: []Section{newSection("s1", 0, newQuestion("q1", 0))},
	}
	if _, err := store.CreateVersion(ctx, form.ID, input); err != nil {
		t.Fatalf("first CreateVersion failed: %v", err)
	}

	_, err := store.CreateVersion(ctx, form.ID, input)
	if !errors.Is(err, ErrDuplicateVersion) {
		t.Errorf("expected ErrDuplicateVersion, got %v", err)
	}
}

func TestStore_ActivateVersion_UnknownVersionRejected(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "no-such-version", CreatedBy: "u1"})

	err := store.ActivateVersion(ctx, form.ID, "v9")
	if !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("expected ErrVersionNotFound, got %v", err)
	}
}

func TestStore_GetActiveVersion(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "active-version", CreatedBy: "u1"})
	_, err := store.CreateVersion(ctx, form.ID, CreateVersionInput{
		Version: "v1", CreatedBy: "u1",
		Sections: []Section{newSection("s1", 0, newQuestion("q1", 0))},
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	if _, err := store.GetActiveVersion(ctx, form.ID); !errors.Is(err, ErrNoVersions) {
		t.Errorf("expected ErrNoVersions before activation, got %v", err)
	}

	if err := store.ActivateVersion(ctx, form.ID, "v1"); err != nil {
		t.Fatalf("ActivateVersion failed: %v", err)
	}

	active, err := store.GetActiveVersion(ctx, form.ID)
	if err != nil {
		t.Fatalf("GetActiveVersion failed: %v", err)
	}
	if active.Version != "v1" || len(active.Sections) != 1 {
		t.Errorf("unexpected active version: %+v", active)
	}
}

func TestStore_ReorderSections(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "reorder-sections", CreatedBy: "u1"})
	_, err := store.CreateVersion(ctx, form.ID, CreateVersionInput{
		Version: "v1", CreatedBy: "u1",
		Sections: []Section{
			newSection("s1", 0, newQuestion("q1", 0)),
			newSection("s2", 1, newQuestion("q2", 0)),
		},
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	if err := store.ReorderSections(ctx, form.ID, "v1", []string{"s2", "s1"}); err != nil {
		t.Fatalf("ReorderSections failed: %v", err)
	}

	fv, err := store.GetVersion(ctx, form.ID, "v1")
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if fv.Sections[0].ID != "s2" || fv.Sections[0].Order != 0 {
		t.Errorf("expected s2 first after reorder, got %+v", fv.Sections)
	}
	if fv.Sections[1].ID != "s1" || fv.Sections[1].Order != 1 {
		t.Errorf("expected s1 second after reorder, got %+v", fv.Sections)
	}
}

func TestStore_ReorderSections_RejectsMismatchedList(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "reorder-sections-bad", CreatedBy: "u1"})
	_, err := store.CreateVersion(ctx, form.ID, CreateVersionInput{
		Version: "v1", CreatedBy: "u1",
		Sections: []Section{
			newSection("s1", 0, newQuestion("q1", 0)),
			newSection("s2", 1, newQuestion("q2", 0)),
		},
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	if err := store.ReorderSections(ctx, form.ID, "v1", []string{"s1"}); !errors.Is(err, ErrOrderMismatch) {
		t.Errorf("expected ErrOrderMismatch for short list, got %v", err)
	}
	if err := store.ReorderSections(ctx, form.ID, "v1", []string{"s1", "s9"}); !errors.Is(err, ErrOrderMismatch) {
		t.Errorf("expected ErrOrderMismatch for unknown id, got %v", err)
	}
}

func TestStore_ReorderQuestions(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "reorder-questions", CreatedBy: "u1"})
	_, err := store.CreateVersion(ctx, form.ID, CreateVersionInput{
		Version: "v1", CreatedBy: "u1",
		Sections: []Section{newSection("s1", 0, newQuestion("q1", 0), newQuestion("q2", 1))},
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	if err := store.ReorderQuestions(ctx, form.ID, "v1", "s1", []string{"q2", "q1"}); err != nil {
		t.Fatalf("ReorderQuestions failed: %v", err)
	}

	fv, err := store.GetVersion(ctx, form.ID, "v1")
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if fv.Sections[0].Questions[0].ID != "q2" {
		t.Errorf("expected q2 first after reorder, got %+v", fv.Sections[0].Questions)
	}
}

func TestStore_ReorderQuestions_RejectsMismatchedList(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "reorder-questions-bad", CreatedBy: "u1"})
	_, err := store.CreateVersion(ctx, form.ID, CreateVersionInput{
		Version: "v1", CreatedBy: "u1",
		Sections: []Section{newSection("s1", 0, newQuestion("q1", 0), newQuestion("q2", 1))},
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	if err := store.ReorderQuestions(ctx, form.ID, "v1", "s1", []string{"q1"}); !errors.Is(err, ErrOrderMismatch) {
		t.Errorf("expected ErrOrderMismatch for short list, got %v", err)
	}
	if err := store.ReorderQuestions(ctx, form.ID, "v1", "s1", []string{"q1", "q9"}); !errors.Is(err, ErrOrderMismatch) {
		t.Errorf("expected ErrOrderMismatch for unknown id, got %v", err)
	}
}

func TestStore_ImportOptions(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "import-options", CreatedBy: "u1"})
	q := newQuestion("q1", 0)
	q.FieldType = FieldSelect
	_, err := store.CreateVersion(ctx, form.ID, CreateVersionInput{
		Version: "v1", CreatedBy: "u1",
		Sections: []Section{newSection("s1", 0, q)},
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	options := []Option{
		{ID: "o1", OptionLabel: "Yes", OptionValue: "yes"},
		{ID: "o2", OptionLabel: "No", OptionValue: "no"},
	}
	if err := store.ImportOptions(ctx, form.ID, "v1", "q1", options); err != nil {
		t.Fatalf("ImportOptions failed: %v", err)
	}

	fv, err := store.GetVersion(ctx, form.ID, "v1")
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if len(fv.Sections[0].Questions[0].Options) != 2 {
		t.Errorf("expected 2 options, got %+v", fv.Sections[0].Questions[0].Options)
	}
}

func TestStore_UpsertTranslations(t *testing.T) {
	store := NewStore(testDB(t))
	ctx := context.Background()

	form, _ := store.CreateForm(ctx, CreateFormInput{Title: "A", Slug: "translations", CreatedBy: "u1"})
	_, err := store.CreateVersion(ctx, form.ID, CreateVersionInput{
		Version: "v1", CreatedBy: "u1",
		Sections: []Section{newSection("s1", 0, newQuestion("q1", 0))},
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}

	overrides := LanguageOverrides{QuestionLabels: map[string]string{"q1": "Nombre"}}
	if err := store.UpsertTranslations(ctx, form.ID, "v1", "es", overrides); err != nil {
		t.Fatalf("UpsertTranslations failed: %v", err)
	}

	fv, err := store.GetVersion(ctx, form.ID, "v1")
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if fv.Translations["es"].QuestionLabels["q1"] != "Nombre" {
		t.Errorf("expected translation to persist, got %+v", fv.Translations)
	}
}

package responses

import (
	"context"
	"errors"
	"testing"

	"github.com/formwright/formwright/internal/config"
	"github.com/formwright/formwright/internal/database"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/validator"
)

func testDB(t *testing.T) *database.DB {
	t.Helper()
	tmpDir := t.TempDir()

	db, err := database.Open(&config.DatabaseConfig{Path: tmpDir + "/test.db"})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testForm(t *testing.T, db *database.DB) (*forms.Form, *forms.FormVersion) {
	t.Helper()
	ctx := context.Background()
	store := forms.NewStore(db)

	form, err := store.CreateForm(ctx, forms.CreateFormInput{Title: "Intake", Slug: "intake", CreatedBy: "owner", IsPublic: true})
	if err != nil {
		t.Fatalf("CreateForm failed: %v", err)
	}

	version, err := store.CreateVersion(ctx, form.ID, forms.CreateVersionInput{
		Version: "v1", CreatedBy: "owner",
		Sections: []forms.Section{{
			ID: "s1", Order: 0,
			Questions: []forms.Question{
				{ID: "name", Label: "Name", FieldType: forms.FieldInput, IsRequired: true, Order: 0},
				{ID: "age", Label: "Age", FieldType: forms.FieldRating, Order: 1},
			},
		}},
	})
	if err != nil {
		t.Fatalf("CreateVersion failed: %v", err)
	}
	if err := store.ActivateVersion(ctx, form.ID, "v1"); err != nil {
		t.Fatalf("ActivateVersion failed: %v", err)
	}

	return form, version
}

func TestStore_SubmitAndGetByID(t *testing.T) {
	db := testDB(t)
	form, version := testForm(t, db)
	store := NewStore(db, validator.New())
	ctx := context.Background()

	resp, fieldErrs, err := store.Submit(ctx, SubmitInput{
		Form: form, Version: version, SubmittedBy: "user-1",
		Payload: map[string]any{"s1": map[string]any{"name": "Ada", "age": 30.0}},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v (field errors: %+v)", err, fieldErrs)
	}
	if resp.Status != StatusPending {
		t.Errorf("expected new response to be pending, got %s", resp.Status)
	}

	got, err := store.GetByID(ctx, resp.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	section := got.Data["s1"].(map[string]any)
	if section["name"] != "Ada" {
		t.Errorf("unexpected stored data: %+v", got.Data)
	}

	history, err := store.ListHistory(ctx, resp.ID)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(history) != 1 || history[0].ChangeType != ChangeCreate {
		t.Errorf("expected a single create history entry, got %+v", history)
	}
}

func TestStore_Submit_ValidationFailureReturnsFieldErrors(t *testing.T) {
	db := testDB(t)
	form, version := testForm(t, db)
	store := NewStore(db, validator.New())

	_, fieldErrs, err := store.Submit(context.Background(), SubmitInput{
		Form: form, Version: version, SubmittedBy: "user-1",
		Payload: map[string]any{},
	})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	if len(fieldErrs) != 1 || fieldErrs[0].ID != "name" {
		t.Errorf("expected a Required error on name, got %+v", fieldErrs)
	}
}

func TestStore_Update_OnlyOwnerCanUpdate(t *testing.T) {
	db := testDB(t)
	form, version := testForm(t, db)
	store := NewStore(db, validator.New())
	ctx := context.Background()

	resp, _, err := store.Submit(ctx, SubmitInput{
		Form: form, Version: version, SubmittedBy: "user-1",
		Payload: map[string]any{"s1": map[string]any{"name": "Ada"}},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	_, _, err = store.Update(ctx, resp.ID, UpdateInput{
		Form: form, Version: version, ActorID: "user-2",
		Payload: map[string]any{"s1": map[string]any{"name": "Mallory"}},
	})
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	updated, _, err := store.Update(ctx, resp.ID, UpdateInput{
		Form: form, Version: version, ActorID: "user-1",
		Payload: map[string]any{"s1": map[string]any{"name": "Ada Lovelace"}},
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Data["s1"].(map[string]any)["name"] != "Ada Lovelace" {
		t.Errorf("update did not apply: %+v", updated.Data)
	}

	history, err := store.ListHistory(ctx, resp.ID)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(history) != 2 || history[1].ChangeType != ChangeUpdate {
		t.Errorf("expected create+update history, got %+v", history)
	}
}

func TestStore_SoftDeleteAndRestore(t *testing.T) {
	db := testDB(t)
	form, version := testForm(t, db)
	store := NewStore(db, validator.New())
	ctx := context.Background()

	resp, _, err := store.Submit(ctx, SubmitInput{
		Form: form, Version: version, SubmittedBy: "user-1",
		Payload: map[string]any{"s1": map[string]any{"name": "Ada"}},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := store.SoftDelete(ctx, resp.ID, "admin-1"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	got, err := store.GetByID(ctx, resp.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.Deleted {
		t.Error("expected response to be marked deleted")
	}

	if err := store.SoftDelete(ctx, resp.ID, "admin-1"); !errors.Is(err, ErrAlreadyDeleted) {
		t.Errorf("expected ErrAlreadyDeleted, got %v", err)
	}

	if err := store.Restore(ctx, resp.ID, "admin-1"); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	got, err = store.GetByID(ctx, resp.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Deleted {
		t.Error("expected response to be restored")
	}
}

func TestStore_Search_ExcludesDeletedAndDraftsByDefault(t *testing.T) {
	db := testDB(t)
	form, version := testForm(t, db)
	store := NewStore(db, validator.New())
	ctx := context.Background()

	live, _, err := store.Submit(ctx, SubmitInput{Form: form, Version: version, SubmittedBy: "u1",
		Payload: map[string]any{"s1": map[string]any{"name": "Ada"}}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deleted, _, err := store.Submit(ctx, SubmitInput{Form: form, Version: version, SubmittedBy: "u2",
		Payload: map[string]any{"s1": map[string]any{"name": "Bob"}}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := store.SoftDelete(ctx, deleted.ID, "admin"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	if _, _, err := store.Submit(ctx, SubmitInput{Form: form, Version: version, SubmittedBy: "u3",
		Payload: map[string]any{"s1": map[string]any{}}, IsDraft: true}); err != nil {
		t.Fatalf("Submit (draft) failed: %v", err)
	}

	page, err := store.Search(ctx, SearchFilter{FormID: form.ID})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(page.Responses) != 1 || page.Responses[0].ID != live.ID {
		t.Errorf("expected only the live response, got %d results", len(page.Responses))
	}
}

func TestStore_Search_FilterByFieldValue(t *testing.T) {
	db := testDB(t)
	form, version := testForm(t, db)
	store := NewStore(db, validator.New())
	ctx := context.Background()

	for _, name := range []string{"Ada", "Bob", "Carol"} {
		if _, _, err := store.Submit(ctx, SubmitInput{Form: form, Version: version, SubmittedBy: "u-" + name,
			Payload: map[string]any{"s1": map[string]any{"name": name}}}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	page, err := store.Search(ctx, SearchFilter{
		FormID: form.ID,
		Filter: &Filter{FieldID: "name", Op: OpEq, Value: "Bob"},
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(page.Responses) != 1 {
		t.Fatalf("expected exactly one match, got %d", len(page.Responses))
	}
	if page.Responses[0].Data["s1"].(map[string]any)["name"] != "Bob" {
		t.Errorf("unexpected match: %+v", page.Responses[0].Data)
	}
}

func TestStore_Search_CursorPagination(t *testing.T) {
	db := testDB(t)
	form, version := testForm(t, db)
	store := NewStore(db, validator.New())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, _, err := store.Submit(ctx, SubmitInput{Form: form, Version: version, SubmittedBy: "u",
			Payload: map[string]any{"s1": map[string]any{"name": "x"}}}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	seen := make(map[string]bool)
	var cursor *Cursor
	for {
		page, err := store.Search(ctx, SearchFilter{FormID: form.ID, Limit: 2, Cursor: cursor})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		for _, r := range page.Responses {
			if seen[r.ID] {
				t.Fatalf("response %s returned twice across pages", r.ID)
			}
			seen[r.ID] = true
		}
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}

	if len(seen) != 5 {
		t.Errorf("expected to page through all 5 responses, saw %d", len(seen))
	}
}

func TestStore_DuplicateCheck(t *testing.T) {
	db := testDB(t)
	form, version := testForm(t, db)
	store := NewStore(db, validator.New())
	ctx := context.Background()

	if _, _, err := store.Submit(ctx, SubmitInput{Form: form, Version: version, SubmittedBy: "u1",
		Payload: map[string]any{"s1": map[string]any{"name": "Ada"}}}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	_, found, err := store.DuplicateCheck(ctx, form.ID, "u1", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("DuplicateCheck failed: %v", err)
	}
	if !found {
		t.Error("expected a duplicate to be found")
	}

	_, found, err = store.DuplicateCheck(ctx, form.ID, "u1", map[string]any{"name": "Someone Else"})
	if err != nil {
		t.Fatalf("DuplicateCheck failed: %v", err)
	}
	if found {
		t.Error("expected no duplicate for a different name")
	}
}

func TestStore_CommentsAndSavedSearches(t *testing.T) {
	db := testDB(t)
	form, version := testForm(t, db)
	store := NewStore(db, validator.New())
	ctx := context.Background()

	resp, _, err := store.Submit(ctx, SubmitInput{Form: form, Version: version, SubmittedBy: "u1",
		Payload: map[string]any{"s1": map[string]any{"name": "Ada"}}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if _, err := store.AddComment(ctx, resp.ID, "reviewer-1", "looks good"); err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	comments, err := store.ListComments(ctx, resp.ID)
	if err != nil {
		t.Fatalf("ListComments failed: %v", err)
	}
	if len(comments) != 1 || comments[0].Body != "looks good" {
		t.Errorf("unexpected comments: %+v", comments)
	}

	saved, err := store.SaveSearch(ctx, SavedSearch{
		UserID: "reviewer-1", FormID: form.ID, Name: "pending",
		Filter: Filter{FieldID: "name", Op: OpEq, Value: "Ada"},
		Sort:   SortSpec{Field: "submitted_at", Desc: true},
	})
	if err != nil {
		t.Fatalf("SaveSearch failed: %v", err)
	}
	if saved.ID == "" {
		t.Error("expected SaveSearch to assign an id")
	}

	searches, err := store.ListSavedSearches(ctx, "reviewer-1", form.ID)
	if err != nil {
		t.Fatalf("ListSavedSearches failed: %v", err)
	}
	if len(searches) != 1 || searches[0].Name != "pending" {
		t.Errorf("unexpected saved searches: %+v", searches)
	}
}

func TestStore_Count(t *testing.T) {
	db := testDB(t)
	form, version := testForm(t, db)
	store := NewStore(db, validator.New())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := store.Submit(ctx, SubmitInput{Form: form, Version: version, SubmittedBy: "u",
			Payload: map[string]any{"s1": map[string]any{"name": "x"}}}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	count, err := store.Count(ctx, form.ID, nil)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

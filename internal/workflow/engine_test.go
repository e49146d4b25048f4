package workflow

import (
	"context"
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

func intakeForm(t *testing.T, db *database.DB) (*forms.Form, *forms.FormVersion) {
	t.Helper()
	ctx := context.Background()
	store := forms.NewStore(db)

	form, err := store.CreateForm(ctx, forms.CreateFormInput{Title: "Intake", Slug: "intake", CreatedBy: "owner", IsPublic: true})
	if err != nil {
		t.Fatalf("CreateForm: %v", err)
	}
	version, err := store.CreateVersion(ctx, form.ID, forms.CreateVersionInput{
		Version: "v1", CreatedBy: "owner",
		Sections: []forms.Section{{
			ID: "s1", Order: 0,
			Questions: []forms.Question{
				{ID: "priority", Label: "Priority", FieldType: forms.FieldInput, Order: 0},
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

func escalationForm(t *testing.T, db *database.DB) *forms.Form {
	t.Helper()
	ctx := context.Background()
	store := forms.NewStore(db)

	form, err := store.CreateForm(ctx, forms.CreateFormInput{Title: "Escalation", Slug: "escalation", CreatedBy: "owner"})
	if err != nil {
		t.Fatalf("CreateForm: %v", err)
	}
	_, err = store.CreateVersion(ctx, form.ID, forms.CreateVersionInput{
		Version: "v1", CreatedBy: "owner",
		Sections: []forms.Section{{
			ID: "s1", Order: 0,
			Questions: []forms.Question{
				{ID: "orig_id", Label: "Original ID", FieldType: forms.FieldInput, Order: 0},
				{ID: "orig_priority", Label: "Original Priority", FieldType: forms.FieldInput, Order: 1},
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
	return form
}

func submit(t *testing.T, respStore *responses.Store, form *forms.Form, version *forms.FormVersion, priority string) *responses.FormResponse {
	t.Helper()
	ctx := context.Background()
	resp, fieldErrs, err := respStore.Submit(ctx, responses.SubmitInput{
		Form: form, Version: version, SubmittedBy: "submitter-1", IsPublic: true,
		Payload: map[string]any{"s1": map[string]any{"priority": priority}},
	})
	if err != nil || len(fieldErrs) > 0 {
		t.Fatalf("Submit: %v %v", err, fieldErrs)
	}
	return resp
}

func TestEngine_RedirectMatchResolvesDataMapping(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	form, version := intakeForm(t, db)
	target := escalationForm(t, db)

	wfStore := NewStore(db)
	_, err := wfStore.Create(ctx, CreateInput{
		Name: "escalate", TriggerFormID: form.ID, TriggerCondition: `answers.get("priority", "") == "high"`,
		Actions: []WorkflowAction{{
			Type: ActionRedirectToForm, TargetFormID: target.ID,
			DataMapping: map[string]string{"orig_id": "id", "orig_priority": "priority"},
		}},
		IsActive: true, CreatedBy: "owner",
	})
	if err != nil {
		t.Fatalf("creating workflow: %v", err)
	}

	respStore := responses.NewStore(db, validator.New())
	formStore := forms.NewStore(db)
	engine := NewEngine(wfStore, respStore, formStore, nil)

	resp := submit(t, respStore, form, version, "high")
	flat := responses.FlattenData(resp.Data)

	result := engine.Run(ctx, form, resp, flat)
	if result == nil {
		t.Fatal("expected a workflow match")
	}
	if len(result.Actions) != 1 || result.Actions[0].Type != ActionRedirectToForm {
		t.Fatalf("expected one redirect_to_form action, got %+v", result.Actions)
	}
	if result.Actions[0].DataMapping["orig_id"] != resp.ID {
		t.Fatalf("expected orig_id to resolve to response id, got %v", result.Actions[0].DataMapping["orig_id"])
	}
	if result.Actions[0].DataMapping["orig_priority"] != "high" {
		t.Fatalf("expected orig_priority to resolve to flat answer, got %v", result.Actions[0].DataMapping["orig_priority"])
	}

	resp2 := submit(t, respStore, form, version, "low")
	flat2 := responses.FlattenData(resp2.Data)
	if engine.Run(ctx, form, resp2, flat2) != nil {
		t.Fatal("expected no workflow match for low priority")
	}
}

func TestEngine_FirstMatchWins(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	form, version := intakeForm(t, db)

	wfStore := NewStore(db)
	_, err := wfStore.Create(ctx, CreateInput{
		Name: "first", TriggerFormID: form.ID, TriggerCondition: `answers.get("priority", "") == "high"`,
		Actions: []WorkflowAction{{Type: ActionRedirectToForm, TargetFormID: "form-a"}},
		IsActive: true, CreatedBy: "owner",
	})
	if err != nil {
		t.Fatalf("creating first workflow: %v", err)
	}
	_, err = wfStore.Create(ctx, CreateInput{
		Name: "second", TriggerFormID: form.ID, TriggerCondition: `answers.get("priority", "") == "high"`,
		Actions: []WorkflowAction{{Type: ActionRedirectToForm, TargetFormID: "form-b"}},
		IsActive: true, CreatedBy: "owner",
	})
	if err != nil {
		t.Fatalf("creating second workflow: %v", err)
	}

	respStore := responses.NewStore(db, validator.New())
	formStore := forms.NewStore(db)
	engine := NewEngine(wfStore, respStore, formStore, nil)

	resp := submit(t, respStore, form, version, "high")
	flat := responses.FlattenData(resp.Data)

	result := engine.Run(ctx, form, resp, flat)
	if result == nil {
		t.Fatal("expected a workflow match")
	}
	if result.Actions[0].TargetFormID != "form-a" {
		t.Fatalf("expected first-created workflow to win, got target %s", result.Actions[0].TargetFormID)
	}
}

func TestEngine_CreateDraftInsertsIntoTargetForm(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	form, version := intakeForm(t, db)
	target := escalationForm(t, db)

	wfStore := NewStore(db)
	_, err := wfStore.Create(ctx, CreateInput{
		Name: "escalate", TriggerFormID: form.ID, TriggerCondition: `answers.get("priority", "") == "high"`,
		Actions: []WorkflowAction{{
			Type: ActionCreateDraft, TargetFormID: target.ID,
			DataMapping: map[string]string{"orig_id": "id", "orig_priority": "priority"},
		}},
		IsActive: true, CreatedBy: "owner",
	})
	if err != nil {
		t.Fatalf("creating workflow: %v", err)
	}

	respStore := responses.NewStore(db, validator.New())
	formStore := forms.NewStore(db)
	engine := NewEngine(wfStore, respStore, formStore, nil)

	resp := submit(t, respStore, form, version, "high")
	flat := responses.FlattenData(resp.Data)

	result := engine.Run(ctx, form, resp, flat)
	if result == nil {
		t.Fatal("expected a workflow match")
	}

	page, err := respStore.Search(ctx, responses.SearchFilter{FormID: target.ID, Limit: 10, IsDraft: boolPtr(true)})
	if err != nil {
		t.Fatalf("searching target form responses: %v", err)
	}
	if len(page.Responses) != 1 {
		t.Fatalf("expected one draft response created, got %d", len(page.Responses))
	}
	if page.Responses[0].Metadata["source_workflow_id"] != result.WorkflowID {
		t.Fatalf("expected draft metadata to reference the workflow, got %+v", page.Responses[0].Metadata)
	}
}

func boolPtr(b bool) *bool { return &b }

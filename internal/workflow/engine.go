package workflow

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/expr"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/responses"
)

// Notifier is the email side effect a notify_user action triggers. Kept
// narrow and best-effort, the same shape approval.Notifier uses for C7.
type Notifier interface {
	NotifyWorkflowUser(ctx context.Context, userRef string, wf *FormWorkflow, resp *responses.FormResponse)
}

// Engine matches a submitted response against a form's active workflows and
// executes the first one whose trigger_condition holds.
type Engine struct {
	workflows  *Store
	responses  *responses.Store
	forms      *forms.Store
	conditions *expr.Evaluator
	notifier   Notifier
}

// NewEngine builds a workflow engine. notifier may be nil to skip
// notify_user side effects.
func NewEngine(workflows *Store, respStore *responses.Store, formStore *forms.Store, notifier Notifier) *Engine {
	return &Engine{
		workflows: workflows, responses: respStore, forms: formStore,
		conditions: expr.NewEvaluator(), notifier: notifier,
	}
}

// Run implements §4.8's submission hook: load active workflows for
// resp.FormID in creation order, evaluate each trigger_condition against
// flatAnswers, execute the first match's actions, and return the
// client-facing workflow_action payload (nil if nothing matched).
//
// create_draft is executed inline (per the spec's scheduling model, so the
// response payload reflects the side effect); its failure is logged and
// swallowed, never propagated to the submit path. notify_user is
// best-effort via Notifier. redirect_to_form has no server-side effect
// beyond appearing in the returned MatchResult.
func (e *Engine) Run(ctx context.Context, form *forms.Form, resp *responses.FormResponse, flatAnswers map[string]any) *MatchResult {
	workflows, err := e.workflows.ListActiveByForm(ctx, form.ID)
	if err != nil {
		log.Error().Err(err).Str("form_id", form.ID).Msg("loading workflows failed, skipping workflow match")
		return nil
	}

	for _, wf := range workflows {
		if !e.matches(wf, flatAnswers) {
			continue
		}

		resolved := make([]ResolvedAction, 0, len(wf.Actions))
		for _, action := range wf.Actions {
			resolved = append(resolved, e.execute(ctx, wf, action, form, resp, flatAnswers))
		}

		return &MatchResult{WorkflowID: wf.ID, Actions: resolved}
	}

	return nil
}

func (e *Engine) matches(wf *FormWorkflow, flatAnswers map[string]any) bool {
	cond, err := e.conditions.Compile(wf.TriggerCondition)
	if err != nil {
		log.Warn().Err(err).Str("workflow_id", wf.ID).Msg("workflow trigger_condition failed to compile, skipping")
		return false
	}
	return cond.Evaluate(flatAnswers)
}

func (e *Engine) execute(ctx context.Context, wf *FormWorkflow, action WorkflowAction, form *forms.Form, resp *responses.FormResponse, flatAnswers map[string]any) ResolvedAction {
	mapped := resolveDataMapping(action.DataMapping, resp, flatAnswers)
	result := ResolvedAction{Type: action.Type, TargetFormID: action.TargetFormID, DataMapping: mapped}

	switch action.Type {
	case ActionRedirectToForm:
		// No server-side effect; the resolved mapping is the whole point.

	case ActionCreateDraft:
		e.createDraft(ctx, wf, action, form, resp, mapped, flatAnswers)

	case ActionNotifyUser:
		if e.notifier != nil {
			userRef, _ := flatAnswers[action.AssignToUserField].(string)
			e.notifier.NotifyWorkflowUser(ctx, userRef, wf, resp)
		}
	}

	return result
}

func (e *Engine) createDraft(ctx context.Context, wf *FormWorkflow, action WorkflowAction, sourceForm *forms.Form, sourceResp *responses.FormResponse, mapped map[string]any, flatAnswers map[string]any) {
	if action.TargetFormID == "" {
		log.Warn().Str("workflow_id", wf.ID).Msg("create_draft action missing target_form_id, skipping")
		return
	}

	targetForm, err := e.forms.GetForm(ctx, action.TargetFormID)
	if err != nil {
		log.Error().Err(err).Str("workflow_id", wf.ID).Str("target_form_id", action.TargetFormID).Msg("create_draft: target form lookup failed")
		return
	}
	targetVersion, err := e.forms.GetActiveVersion(ctx, action.TargetFormID)
	if err != nil {
		log.Error().Err(err).Str("workflow_id", wf.ID).Str("target_form_id", action.TargetFormID).Msg("create_draft: target form has no active version")
		return
	}

	submittedBy := sourceResp.SubmittedBy
	if action.AssignToUserField != "" {
		if v, ok := flatAnswers[action.AssignToUserField].(string); ok && v != "" {
			submittedBy = v
		}
	}

	// data_mapping's target_field_id keys are flat; the draft's payload must
	// nest under the target form's (single, unsectioned) catch-all section
	// the same way a normal submission does, so every mapped value lands
	// under the target's first section.
	payload := map[string]any{}
	if len(targetVersion.Sections) > 0 {
		payload[targetVersion.Sections[0].ID] = mapped
	}

	_, fieldErrs, err := e.responses.Submit(ctx, responses.SubmitInput{
		Form: targetForm, Version: targetVersion, SubmittedBy: submittedBy,
		Payload: payload, IsDraft: true,
		Metadata: map[string]any{"source_workflow_id": wf.ID},
	})
	if err != nil || len(fieldErrs) > 0 {
		log.Error().Err(err).Interface("field_errors", fieldErrs).
			Str("workflow_id", wf.ID).Str("target_form_id", action.TargetFormID).
			Msg("create_draft: draft submission failed, swallowing")
	}
}

// resolveDataMapping implements §4.8's data mapping resolution: special
// response-header keys, dotted paths into nested data, or flat-answers.
func resolveDataMapping(mapping map[string]string, resp *responses.FormResponse, flatAnswers map[string]any) map[string]any {
	if len(mapping) == 0 {
		return nil
	}

	out := make(map[string]any, len(mapping))
	for target, source := range mapping {
		switch source {
		case "id":
			out[target] = resp.ID
		case "submitted_at":
			out[target] = resp.SubmittedAt
		case "submitted_by":
			out[target] = resp.SubmittedBy
		case "version":
			out[target] = resp.Version
		default:
			if strings.Contains(source, ".") {
				out[target] = lookupDotted(resp.Data, source)
			} else {
				out[target] = flatAnswers[source]
			}
		}
	}
	return out
}

func lookupDotted(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = data
	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

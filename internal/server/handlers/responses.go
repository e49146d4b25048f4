package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/audit"
	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/permissions"
	"github.com/formwright/formwright/internal/responses"
	"github.com/formwright/formwright/internal/webhooks"
	"github.com/formwright/formwright/internal/workflow"
)

type ResponseHandlers struct {
	store      *responses.Store
	forms      *forms.Store
	workflows  *workflow.Engine
	dispatcher *webhooks.Dispatcher
	audit      *audit.Store
}

func NewResponseHandlers(store *responses.Store, formStore *forms.Store, workflows *workflow.Engine, dispatcher *webhooks.Dispatcher, auditStore *audit.Store) *ResponseHandlers {
	return &ResponseHandlers{store: store, forms: formStore, workflows: workflows, dispatcher: dispatcher, audit: auditStore}
}

type submitResponseRequest struct {
	Payload  map[string]any `json:"payload"`
	Metadata map[string]any `json:"metadata"`
	IsDraft  bool           `json:"is_draft"`
}

// Submit handles POST /api/forms/{form_id}/responses. Anonymous submission
// is allowed when the form is public; OptionalAuth leaves actor nil rather
// than rejecting the request in that case.
func (h *ResponseHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	form, err := h.forms.GetForm(r.Context(), formID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	if !permissions.HasPermission(actor, form, permissions.ActionSubmit) {
		Forbidden(w, "Not permitted to submit to this form")
		return
	}

	version, err := h.forms.GetActiveVersion(r.Context(), formID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	var req submitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	submittedBy := "anonymous"
	if actor != nil {
		submittedBy = actor.ID
	}

	resp, fieldErrs, err := h.store.Submit(r.Context(), responses.SubmitInput{
		Form:        form,
		Version:     version,
		SubmittedBy: submittedBy,
		Payload:     req.Payload,
		Metadata:    req.Metadata,
		IsDraft:     req.IsDraft,
		IsPublic:    form.IsPublic,
	})
	if len(fieldErrs) > 0 {
		ErrorWithDetails(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Submission failed validation", fieldErrs)
		return
	}
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	var matched *workflow.MatchResult
	if !req.IsDraft {
		matched = h.workflows.Run(r.Context(), form, resp, responses.FlattenData(resp.Data))
		h.dispatcher.Dispatch(r.Context(), form, "response.created", resp.ID, resp.Data)
	}

	JSON(w, http.StatusCreated, map[string]any{"response": resp, "workflow_action": matched})
}

func (h *ResponseHandlers) Get(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("response_id")
	resp, err := h.store.GetByID(r.Context(), responseID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	form, err := h.forms.GetForm(r.Context(), resp.FormID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	if !permissions.HasPermission(actor, form, permissions.ActionView) && (actor == nil || actor.ID != resp.SubmittedBy) {
		Forbidden(w, "Not permitted to view this response")
		return
	}

	JSON(w, http.StatusOK, resp)
}

type updateResponseRequest struct {
	Payload map[string]any `json:"payload"`
	IsDraft bool           `json:"is_draft"`
}

func (h *ResponseHandlers) Update(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("response_id")
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	existing, err := h.store.GetByID(r.Context(), responseID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	form, err := h.forms.GetForm(r.Context(), existing.FormID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	version, err := h.forms.GetVersion(r.Context(), existing.FormID, existing.Version)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	var req updateResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	resp, fieldErrs, err := h.store.Update(r.Context(), responseID, responses.UpdateInput{
		Form:     form,
		Version:  version,
		ActorID:  actor.ID,
		Payload:  req.Payload,
		IsDraft:  req.IsDraft,
		IsPublic: form.IsPublic,
	})
	if len(fieldErrs) > 0 {
		ErrorWithDetails(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Submission failed validation", fieldErrs)
		return
	}
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

func (h *ResponseHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("response_id")
	actor := h.requireActor(w, r)
	if actor == nil {
		return
	}

	if err := h.store.SoftDelete(r.Context(), responseID, actor.ID); err != nil {
		h.handleStoreError(w, err)
		return
	}
	h.recordAudit(r, actor.ID, "response.delete", responseID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *ResponseHandlers) Restore(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("response_id")
	actor := h.requireActor(w, r)
	if actor == nil {
		return
	}

	if err := h.store.Restore(r.Context(), responseID, actor.ID); err != nil {
		h.handleStoreError(w, err)
		return
	}
	h.recordAudit(r, actor.ID, "response.restore", responseID)

	w.WriteHeader(http.StatusNoContent)
}

// recordAudit logs an admin action; a logging failure must not affect the
// response already sent to the caller.
func (h *ResponseHandlers) recordAudit(r *http.Request, actorID, action, responseID string) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(r.Context(), actorID, action, "response", responseID, nil); err != nil {
		log.Error().Err(err).Msg("failed to record audit log entry")
	}
}

func (h *ResponseHandlers) History(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("response_id")
	history, err := h.store.ListHistory(r.Context(), responseID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{"history": history})
}

type addCommentRequest struct {
	Body string `json:"body"`
}

func (h *ResponseHandlers) AddComment(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("response_id")
	actor := h.requireActor(w, r)
	if actor == nil {
		return
	}

	var req addCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	comment, err := h.store.AddComment(r.Context(), responseID, actor.ID, req.Body)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	JSON(w, http.StatusCreated, comment)
}

func (h *ResponseHandlers) ListComments(w http.ResponseWriter, r *http.Request) {
	responseID := r.PathValue("response_id")
	comments, err := h.store.ListComments(r.Context(), responseID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (h *ResponseHandlers) List(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	offset, limit := parseOffsetLimit(r, 50, 500)

	list, err := h.store.ListPaginated(r.Context(), responses.ListPaginatedFilter{
		FormID: formID,
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to list responses")
		InternalError(w, "Failed to list responses")
		return
	}

	JSON(w, http.StatusOK, map[string]any{"responses": list, "offset": offset, "limit": limit})
}

type searchResponsesRequest struct {
	Filter  *responses.Filter  `json:"filter"`
	Sort    responses.SortSpec `json:"sort"`
	Cursor  *responses.Cursor  `json:"cursor"`
	Limit   int                `json:"limit"`
	IsDraft *bool              `json:"is_draft"`
}

func (h *ResponseHandlers) Search(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")

	var req searchResponsesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	page, err := h.store.Search(r.Context(), responses.SearchFilter{
		FormID:  formID,
		Filter:  req.Filter,
		Sort:    req.Sort,
		Cursor:  req.Cursor,
		Limit:   req.Limit,
		IsDraft: req.IsDraft,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to search responses")
		InternalError(w, "Failed to search responses")
		return
	}

	JSON(w, http.StatusOK, page)
}

func (h *ResponseHandlers) requireActor(w http.ResponseWriter, r *http.Request) *auth.User {
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		Unauthorized(w, "Authentication required")
		return nil
	}
	return actor
}

func (h *ResponseHandlers) handleStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, responses.ErrNotFound):
		NotFound(w, "Response not found")
	case errors.Is(err, responses.ErrNotOwner):
		Forbidden(w, err.Error())
	case errors.Is(err, responses.ErrAlreadyDeleted):
		Error(w, http.StatusConflict, "ALREADY_DELETED", err.Error())
	case errors.Is(err, responses.ErrNotDeleted):
		Error(w, http.StatusConflict, "NOT_DELETED", err.Error())
	case errors.Is(err, forms.ErrNotFound):
		NotFound(w, "Form not found")
	case errors.Is(err, forms.ErrVersionNotFound):
		NotFound(w, "Form has no active version")
	default:
		log.Error().Err(err).Msg("response operation failed")
		InternalError(w, "Response operation failed")
	}
}

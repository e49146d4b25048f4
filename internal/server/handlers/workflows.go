package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/workflow"
)

type WorkflowHandlers struct {
	store *workflow.Store
}

func NewWorkflowHandlers(store *workflow.Store) *WorkflowHandlers {
	return &WorkflowHandlers{store: store}
}

type createWorkflowRequest struct {
	Name             string                    `json:"name"`
	TriggerFormID    string                    `json:"trigger_form_id"`
	TriggerCondition string                    `json:"trigger_condition"`
	Actions          []workflow.WorkflowAction `json:"actions"`
	IsActive         bool                      `json:"is_active"`
}

func (h *WorkflowHandlers) Create(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	var req createWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	wf, err := h.store.Create(r.Context(), workflow.CreateInput{
		Name:             req.Name,
		TriggerFormID:    req.TriggerFormID,
		TriggerCondition: req.TriggerCondition,
		Actions:          req.Actions,
		IsActive:         req.IsActive,
		CreatedBy:        actor.ID,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	JSON(w, http.StatusCreated, wf)
}

func (h *WorkflowHandlers) Get(w http.ResponseWriter, r *http.Request) {
	wf, err := h.store.Get(r.Context(), r.PathValue("workflow_id"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	JSON(w, http.StatusOK, wf)
}

func (h *WorkflowHandlers) List(w http.ResponseWriter, r *http.Request) {
	if formID := r.URL.Query().Get("form_id"); formID != "" {
		list, err := h.store.ListActiveByForm(r.Context(), formID)
		if err != nil {
			log.Error().Err(err).Msg("failed to list workflows for form")
			InternalError(w, "Failed to list workflows")
			return
		}
		JSON(w, http.StatusOK, map[string]any{"workflows": list})
		return
	}

	list, err := h.store.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list workflows")
		InternalError(w, "Failed to list workflows")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"workflows": list})
}

type updateWorkflowRequest struct {
	Name             string                    `json:"name"`
	TriggerCondition string                    `json:"trigger_condition"`
	Actions          []workflow.WorkflowAction `json:"actions"`
	IsActive         bool                      `json:"is_active"`
}

func (h *WorkflowHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req updateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	wf, err := h.store.Update(r.Context(), r.PathValue("workflow_id"), workflow.UpdateInput{
		Name:             req.Name,
		TriggerCondition: req.TriggerCondition,
		Actions:          req.Actions,
		IsActive:         req.IsActive,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	JSON(w, http.StatusOK, wf)
}

func (h *WorkflowHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("workflow_id")); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WorkflowHandlers) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		NotFound(w, "Workflow not found")
	case errors.Is(err, workflow.ErrInvalidActionType):
		Error(w, http.StatusBadRequest, "INVALID_ACTION_TYPE", err.Error())
	default:
		log.Error().Err(err).Msg("workflow operation failed")
		InternalError(w, "Workflow operation failed")
	}
}

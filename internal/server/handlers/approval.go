package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/approval"
	"github.com/formwright/formwright/internal/audit"
	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/responses"
)

type ApprovalHandlers struct {
	engine *approval.Engine
	forms  *forms.Store
	store  *responses.Store
	audit  *audit.Store
}

func NewApprovalHandlers(engine *approval.Engine, formStore *forms.Store, respStore *responses.Store, auditStore *audit.Store) *ApprovalHandlers {
	return &ApprovalHandlers{engine: engine, forms: formStore, store: respStore, audit: auditStore}
}

type transitionRequest struct {
	Comment string `json:"comment"`
}

func (h *ApprovalHandlers) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, responses.StatusApproved)
}

func (h *ApprovalHandlers) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, responses.StatusRejected)
}

func (h *ApprovalHandlers) ResetToPending(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, responses.StatusPending)
}

func (h *ApprovalHandlers) transition(w http.ResponseWriter, r *http.Request, to responses.ResponseStatus) {
	responseID := r.PathValue("response_id")
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	resp, err := h.store.GetByID(r.Context(), responseID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	form, err := h.forms.GetForm(r.Context(), resp.FormID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	var req transitionRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	updated, err := h.engine.Transition(r.Context(), approval.TransitionInput{
		Actor: actor, Form: form, Response: resp, To: to, Comment: req.Comment,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}

	if h.audit != nil {
		detail := map[string]any{"to": string(to), "comment": req.Comment}
		if err := h.audit.Record(r.Context(), actor.ID, "response."+string(to), "response", responseID, detail); err != nil {
			log.Error().Err(err).Msg("failed to record audit log entry")
		}
	}

	JSON(w, http.StatusOK, updated)
}

func (h *ApprovalHandlers) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, responses.ErrNotFound):
		NotFound(w, "Response not found")
	case errors.Is(err, forms.ErrNotFound):
		NotFound(w, "Form not found")
	case errors.Is(err, approval.ErrForbidden):
		Forbidden(w, "Not permitted to change this response's status")
	case errors.Is(err, approval.ErrInvalidTransition):
		Error(w, http.StatusBadRequest, "INVALID_TRANSITION", err.Error())
	default:
		log.Error().Err(err).Msg("approval transition failed")
		InternalError(w, "Approval transition failed")
	}
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/permissions"
)

// WebhookHandlers manages the webhook subscriptions embedded on a form
// (C9): each form carries its own list of delivery targets rather than a
// global subscription table, so these handlers are thin wrappers around
// forms.Store.UpdateForm.
type WebhookHandlers struct {
	forms *forms.Store
}

func NewWebhookHandlers(formStore *forms.Store) *WebhookHandlers {
	return &WebhookHandlers{forms: formStore}
}

func (h *WebhookHandlers) List(w http.ResponseWriter, r *http.Request) {
	form, ok := h.authorizedForm(w, r, permissions.ActionView)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, map[string]any{"webhooks": form.Webhooks})
}

func (h *WebhookHandlers) Create(w http.ResponseWriter, r *http.Request) {
	form, ok := h.authorizedForm(w, r, permissions.ActionEdit)
	if !ok {
		return
	}

	var hook forms.Webhook
	if err := json.NewDecoder(r.Body).Decode(&hook); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	updated := append(append([]forms.Webhook{}, form.Webhooks...), hook)
	h.save(w, r, form.ID, updated)
}

func (h *WebhookHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	form, ok := h.authorizedForm(w, r, permissions.ActionEdit)
	if !ok {
		return
	}

	url := r.PathValue("url")
	remaining := make([]forms.Webhook, 0, len(form.Webhooks))
	for _, hook := range form.Webhooks {
		if hook.URL != url {
			remaining = append(remaining, hook)
		}
	}
	h.save(w, r, form.ID, remaining)
}

func (h *WebhookHandlers) save(w http.ResponseWriter, r *http.Request, formID string, hooks []forms.Webhook) {
	updated, err := h.forms.UpdateForm(r.Context(), formID, forms.UpdateFormInput{Webhooks: &hooks})
	if err != nil {
		log.Error().Err(err).Msg("failed to update webhook subscriptions")
		InternalError(w, "Failed to update webhook subscriptions")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"webhooks": updated.Webhooks})
}

func (h *WebhookHandlers) authorizedForm(w http.ResponseWriter, r *http.Request, action permissions.Action) (*forms.Form, bool) {
	formID := r.PathValue("form_id")
	form, err := h.forms.GetForm(r.Context(), formID)
	if err != nil {
		NotFound(w, "Form not found")
		return nil, false
	}

	actor := auth.UserFromContext(r.Context())
	if !permissions.HasPermission(actor, form, action) {
		Forbidden(w, "Not permitted to manage this form's webhooks")
		return nil, false
	}
	return form, true
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/permissions"
)

type FormHandlers struct {
	store *forms.Store
}

func NewFormHandlers(store *forms.Store) *FormHandlers {
	return &FormHandlers{store: store}
}

type createFormRequest struct {
	Title              string   `json:"title"`
	Slug               string   `json:"slug"`
	IsPublic           bool     `json:"is_public"`
	Editors            []string `json:"editors"`
	Viewers            []string `json:"viewers"`
	Submitters         []string `json:"submitters"`
	SupportedLanguages []string `json:"supported_languages"`
	DefaultLanguage    string   `json:"default_language"`
	NotificationEmails []string `json:"notification_emails"`
}

func (h *FormHandlers) Create(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	var req createFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	form, err := h.store.CreateForm(r.Context(), forms.CreateFormInput{
		Title:              req.Title,
		Slug:               req.Slug,
		CreatedBy:          actor.ID,
		IsPublic:           req.IsPublic,
		Editors:            req.Editors,
		Viewers:            req.Viewers,
		Submitters:         req.Submitters,
		SupportedLanguages: req.SupportedLanguages,
		DefaultLanguage:    req.DefaultLanguage,
		NotificationEmails: req.NotificationEmails,
	})
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	JSON(w, http.StatusCreated, form)
}

func (h *FormHandlers) Get(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	form, err := h.store.GetForm(r.Context(), formID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	if !permissions.HasPermission(actor, form, permissions.ActionView) {
		Forbidden(w, "Not permitted to view this form")
		return
	}

	JSON(w, http.StatusOK, form)
}

func (h *FormHandlers) List(w http.ResponseWriter, r *http.Request) {
	filter := forms.ListFormsFilter{}
	if status := r.URL.Query().Get("status"); status != "" {
		s := forms.Status(status)
		filter.Status = s
	}

	list, err := h.store.ListForms(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to list forms")
		InternalError(w, "Failed to list forms")
		return
	}

	JSON(w, http.StatusOK, map[string]any{"forms": list})
}

type updateFormRequest struct {
	Title              *string   `json:"title"`
	IsPublic           *bool     `json:"is_public"`
	Editors            *[]string `json:"editors"`
	Viewers            *[]string `json:"viewers"`
	Submitters         *[]string `json:"submitters"`
	SupportedLanguages *[]string `json:"supported_languages"`
	DefaultLanguage    *string   `json:"default_language"`
	NotificationEmails *[]string `json:"notification_emails"`
	Webhooks           *[]forms.Webhook `json:"webhooks"`
}

func (h *FormHandlers) Update(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	form, err := h.store.GetForm(r.Context(), formID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	if !permissions.HasPermission(actor, form, permissions.ActionEdit) {
		Forbidden(w, "Not permitted to edit this form")
		return
	}

	var req updateFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	updated, err := h.store.UpdateForm(r.Context(), formID, forms.UpdateFormInput{
		Title:              req.Title,
		IsPublic:           req.IsPublic,
		Editors:            req.Editors,
		Viewers:            req.Viewers,
		Submitters:         req.Submitters,
		SupportedLanguages: req.SupportedLanguages,
		DefaultLanguage:    req.DefaultLanguage,
		NotificationEmails: req.NotificationEmails,
		Webhooks:           req.Webhooks,
	})
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	JSON(w, http.StatusOK, updated)
}

func (h *FormHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	form, err := h.store.GetForm(r.Context(), formID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	if !permissions.HasPermission(actor, form, permissions.ActionDeleteForm) {
		Forbidden(w, "Not permitted to delete this form")
		return
	}

	if err := h.store.DeleteForm(r.Context(), formID); err != nil {
		h.handleStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type transitionStatusRequest struct {
	Status string `json:"status"`
}

func (h *FormHandlers) TransitionStatus(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	form, err := h.store.GetForm(r.Context(), formID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	if !permissions.HasPermission(actor, form, permissions.ActionEdit) {
		Forbidden(w, "Not permitted to change this form's status")
		return
	}

	var req transitionStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	updated, err := h.store.TransitionStatus(r.Context(), formID, forms.Status(req.Status))
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	JSON(w, http.StatusOK, updated)
}

type createVersionRequest struct {
	Version      string                            `json:"version"`
	Sections     []forms.Section                   `json:"sections"`
	Translations map[string]forms.LanguageOverrides `json:"translations"`
}

func (h *FormHandlers) CreateVersion(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	form, err := h.store.GetForm(r.Context(), formID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	if actor == nil || !permissions.HasPermission(actor, form, permissions.ActionEdit) {
		Forbidden(w, "Not permitted to edit this form")
		return
	}

	var req createVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	version, err := h.store.CreateVersion(r.Context(), formID, forms.CreateVersionInput{
		Version:      req.Version,
		CreatedBy:    actor.ID,
		Sections:     req.Sections,
		Translations: req.Translations,
	})
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	JSON(w, http.StatusCreated, version)
}

func (h *FormHandlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	version := r.PathValue("version")

	form, err := h.store.GetForm(r.Context(), formID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	if !permissions.HasPermission(actor, form, permissions.ActionView) {
		Forbidden(w, "Not permitted to view this form")
		return
	}

	fv, err := h.store.GetVersion(r.Context(), formID, version)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	JSON(w, http.StatusOK, fv)
}

func (h *FormHandlers) ActivateVersion(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	version := r.PathValue("version")

	form, err := h.store.GetForm(r.Context(), formID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	if !permissions.HasPermission(actor, form, permissions.ActionEdit) {
		Forbidden(w, "Not permitted to publish this form")
		return
	}

	if err := h.store.ActivateVersion(r.Context(), formID, version); err != nil {
		h.handleStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type reorderSectionsRequest struct {
	OrderedIDs []string `json:"ordered_ids"`
}

func (h *FormHandlers) ReorderSections(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	version := r.PathValue("version")

	form, err := h.store.GetForm(r.Context(), formID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	if !permissions.HasPermission(actor, form, permissions.ActionEdit) {
		Forbidden(w, "Not permitted to edit this form")
		return
	}

	var req reorderSectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	if err := h.store.ReorderSections(r.Context(), formID, version, req.OrderedIDs); err != nil {
		h.handleStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type reorderQuestionsRequest struct {
	OrderedIDs []string `json:"ordered_ids"`
}

func (h *FormHandlers) ReorderQuestions(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	version := r.PathValue("version")
	sectionID := r.PathValue("section_id")

	form, err := h.store.GetForm(r.Context(), formID)
	if err != nil {
		h.handleStoreError(w, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	if !permissions.HasPermission(actor, form, permissions.ActionEdit) {
		Forbidden(w, "Not permitted to edit this form")
		return
	}

	var req reorderQuestionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	if err := h.store.ReorderQuestions(r.Context(), formID, version, sectionID, req.OrderedIDs); err != nil {
		h.handleStoreError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseOffsetLimit(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	offset, limit := 0, defaultLimit
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxLimit {
			limit = n
		}
	}
	return offset, limit
}

func (h *FormHandlers) handleStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, forms.ErrNotFound):
		NotFound(w, "Form not found")
	case errors.Is(err, forms.ErrVersionNotFound):
		NotFound(w, "Form version not found")
	case errors.Is(err, forms.ErrSlugTaken):
		Error(w, http.StatusConflict, "SLUG_TAKEN", err.Error())
	case errors.Is(err, forms.ErrInvalidTransition):
		Error(w, http.StatusBadRequest, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, forms.ErrNoVersions):
		Error(w, http.StatusBadRequest, "NO_VERSIONS", err.Error())
	case errors.Is(err, forms.ErrUnknownActiveVersion):
		Error(w, http.StatusBadRequest, "UNKNOWN_VERSION", err.Error())
	case errors.Is(err, forms.ErrDuplicateElementID):
		Error(w, http.StatusBadRequest, "DUPLICATE_ELEMENT_ID", err.Error())
	case errors.Is(err, forms.ErrDuplicateVersion):
		Error(w, http.StatusConflict, "DUPLICATE_VERSION", err.Error())
	case errors.Is(err, forms.ErrOrderMismatch):
		Error(w, http.StatusBadRequest, "ORDER_MISMATCH", err.Error())
	default:
		log.Error().Err(err).Msg("form operation failed")
		InternalError(w, "Form operation failed")
	}
}

package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/auth"
	"github.com/formwright/formwright/internal/forms"
	"github.com/formwright/formwright/internal/storage"
	"github.com/formwright/formwright/internal/validator"
)

type FileHandlers struct {
	service *storage.Service
}

func NewFileHandlers(service *storage.Service) *FileHandlers {
	return &FileHandlers{service: service}
}

// Upload handles POST /api/forms/{form_id}/questions/{question_id}/files.
// Attaching an upload to a question happens before the response carrying it
// exists, so access is gated on submit permission for the form, not on any
// particular response.
func (h *FileHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	questionID := r.PathValue("question_id")

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_FORM", "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "FILE_REQUIRED", "File is required")
		return
	}
	defer file.Close()

	actor := auth.UserFromContext(r.Context())

	uploaded, err := h.service.Upload(r.Context(), formID, questionID, actor, header.Filename, file, header.Size)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusCreated, uploaded)
}

func (h *FileHandlers) List(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	questionID := r.PathValue("question_id")
	actor := auth.UserFromContext(r.Context())

	offset, limit := 0, 100
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	files, err := h.service.List(r.Context(), formID, questionID, actor, offset, limit)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{"files": files, "offset": offset, "limit": limit})
}

func (h *FileHandlers) Download(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	questionID := r.PathValue("question_id")
	fileID := r.PathValue("file_id")
	actor := auth.UserFromContext(r.Context())

	rc, file, err := h.service.Download(r.Context(), formID, questionID, fileID, actor)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", file.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(file.Size, 10))
	w.Header().Set("Content-Disposition", "attachment; filename=\""+file.Name+"\"")

	if _, err := io.Copy(w, rc); err != nil {
		log.Error().Err(err).Str("file_id", fileID).Msg("failed to stream file")
	}
}

func (h *FileHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	formID := r.PathValue("form_id")
	questionID := r.PathValue("question_id")
	fileID := r.PathValue("file_id")
	actor := auth.UserFromContext(r.Context())

	if err := h.service.Delete(r.Context(), formID, questionID, fileID, actor); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *FileHandlers) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		Error(w, http.StatusNotFound, "FILE_NOT_FOUND", "File not found")
	case errors.Is(err, forms.ErrNotFound):
		Error(w, http.StatusNotFound, "FORM_NOT_FOUND", "Form not found")
	case errors.Is(err, validator.ErrFileTooLarge):
		Error(w, http.StatusBadRequest, "FILE_TOO_LARGE", err.Error())
	case errors.Is(err, validator.ErrFileTypeNotAllowed):
		Error(w, http.StatusBadRequest, "INVALID_FILE_TYPE", err.Error())
	case errors.Is(err, storage.ErrForbidden):
		Error(w, http.StatusForbidden, "FORBIDDEN", "Not permitted")
	default:
		log.Error().Err(err).Msg("file operation failed")
		InternalError(w, "File operation failed")
	}
}

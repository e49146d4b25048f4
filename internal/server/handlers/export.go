package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/export"
)

type ExportHandlers struct {
	exporter *export.Exporter
}

func NewExportHandlers(exporter *export.Exporter) *ExportHandlers {
	return &ExportHandlers{exporter: exporter}
}

func (h *ExportHandlers) CSV(w http.ResponseWriter, r *http.Request) {
	data, err := h.exporter.CSV(r.Context(), r.PathValue("form_id"))
	if err != nil {
		log.Error().Err(err).Msg("failed to export CSV")
		InternalError(w, "Failed to export responses")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="responses.csv"`)
	w.Write(data)
}

func (h *ExportHandlers) JSON(w http.ResponseWriter, r *http.Request) {
	data, err := h.exporter.JSON(r.Context(), r.PathValue("form_id"))
	if err != nil {
		log.Error().Err(err).Msg("failed to export JSON")
		InternalError(w, "Failed to export responses")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

type bulkExportRequest struct {
	FormIDs []string `json:"form_ids"`
}

func (h *ExportHandlers) Bulk(w http.ResponseWriter, r *http.Request) {
	var req bulkExportRequest
	if strings.TrimSpace(r.URL.Query().Get("form_ids")) != "" {
		req.FormIDs = strings.Split(r.URL.Query().Get("form_ids"), ",")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON body")
		return
	}

	data, err := h.exporter.Bulk(r.Context(), req.FormIDs)
	if err != nil {
		log.Error().Err(err).Msg("failed to export bulk archive")
		InternalError(w, "Failed to export responses")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="export.zip"`)
	w.Write(data)
}

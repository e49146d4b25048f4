package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/analytics"
)

type AnalyticsHandlers struct {
	aggregator *analytics.Aggregator
}

func NewAnalyticsHandlers(aggregator *analytics.Aggregator) *AnalyticsHandlers {
	return &AnalyticsHandlers{aggregator: aggregator}
}

func (h *AnalyticsHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.aggregator.Summary(r.Context(), r.PathValue("form_id"))
	if err != nil {
		log.Error().Err(err).Msg("failed to compute analytics summary")
		InternalError(w, "Failed to compute analytics summary")
		return
	}
	JSON(w, http.StatusOK, summary)
}

func (h *AnalyticsHandlers) Timeline(w http.ResponseWriter, r *http.Request) {
	days := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	points, err := h.aggregator.Timeline(r.Context(), r.PathValue("form_id"), days)
	if err != nil {
		log.Error().Err(err).Msg("failed to compute analytics timeline")
		InternalError(w, "Failed to compute analytics timeline")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"timeline": points})
}

func (h *AnalyticsHandlers) Distribution(w http.ResponseWriter, r *http.Request) {
	dist, err := h.aggregator.Distribution(r.Context(), r.PathValue("form_id"))
	if err != nil {
		log.Error().Err(err).Msg("failed to compute answer distribution")
		InternalError(w, "Failed to compute answer distribution")
		return
	}
	JSON(w, http.StatusOK, dist)
}

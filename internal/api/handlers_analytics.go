// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/funnelgraph/internal/cache"
	"github.com/tomtom215/funnelgraph/internal/funnel"
	"github.com/tomtom215/funnelgraph/internal/models"
	"github.com/tomtom215/funnelgraph/internal/registry"
)

// analyticsQuery is the parsed and validated form of a funnel analytics
// request. It doubles as the cache key payload: equal queries share a
// cached response.
type analyticsQuery struct {
	FunnelID  string              `json:"funnel_id"`
	StartDate string              `json:"start_date"`
	EndDate   string              `json:"end_date"`
	Filters   map[string][]string `json:"filters,omitempty"`
	SegmentBy string              `json:"segment_by,omitempty"`

	start time.Time
	end   time.Time
}

// parseAnalyticsQuery validates the shared analytics parameters: date
// range bounds, known filter dimensions and segment_by.
func (h *Handler) parseAnalyticsQuery(r *http.Request) (*analyticsQuery, *models.APIError) {
	maxDays := h.config.API.MaxDateRangeDays
	start, end, apiErr := parseDateRange(r, maxDays)
	if apiErr != nil {
		return nil, apiErr
	}

	q := &analyticsQuery{
		FunnelID:  chi.URLParam(r, "funnelID"),
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		start:     start,
		end:       end,
	}

	for _, dim := range models.SegmentDimensions {
		if values := parseCommaSeparated(r.URL.Query().Get(dim)); values != nil {
			if q.Filters == nil {
				q.Filters = make(map[string][]string, len(models.SegmentDimensions))
			}
			q.Filters[dim] = values
		}
	}

	if segmentBy := r.URL.Query().Get("segment_by"); segmentBy != "" {
		if !models.KnownDimension(segmentBy) {
			return nil, &models.APIError{
				Code: "VALIDATION_ERROR",
				Message: fmt.Sprintf("segment_by must be one of: %s",
					strings.Join(models.SegmentDimensions, ", ")),
			}
		}
		q.SegmentBy = segmentBy
	}

	return q, nil
}

// metricsFor computes the funnel metrics for a parsed query, consulting
// the analytics cache first. The bool result reports a cache hit.
func (h *Handler) metricsFor(r *http.Request, q *analyticsQuery) (*models.FunnelMetrics, bool, error) {
	key := cache.GenerateKey("funnel_metrics", q)
	if cached, found := h.cache.Get(key); found {
		if m, ok := cached.(*models.FunnelMetrics); ok {
			return m, true, nil
		}
	}

	m, err := h.funnels.Metrics(r.Context(), funnel.Query{
		FunnelID:  q.FunnelID,
		OrgID:     DefaultOrgID,
		Start:     q.start,
		End:       q.end,
		Filters:   funnel.SegmentFilters(q.Filters),
		SegmentBy: q.SegmentBy,
	})
	if err != nil {
		return nil, false, err
	}

	h.cache.Set(key, m)
	return m, false, nil
}

// FunnelAnalytics computes stage metrics for one funnel over a date
// range, with optional segment filters and breakdown.
func (h *Handler) FunnelAnalytics(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q, apiErr := h.parseAnalyticsQuery(r)
	if apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	m, cached, err := h.metricsFor(r, q)
	if err != nil {
		respondAnalyticsError(w, err)
		return
	}

	respondSuccess(w, http.StatusOK, m, start, cached)
}

// respondAnalyticsError maps funnel service errors: definition misses to
// 404, filter validation to 400, everything else to 500.
func respondAnalyticsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Funnel not found", nil)
	case errors.Is(err, funnel.ErrUnknownDimension):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to compute funnel metrics", err)
	}
}

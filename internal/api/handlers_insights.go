// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/tomtom215/funnelgraph/internal/insights"
)

// FunnelInsights computes funnel metrics for the requested range and
// asks the model for an analysis. Takes the same query parameters as
// FunnelAnalytics plus an optional audience (executive, product_manager,
// data_scientist).
func (h *Handler) FunnelInsights(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	q, apiErr := h.parseAnalyticsQuery(r)
	if apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	m, _, err := h.metricsFor(r, q)
	if err != nil {
		respondAnalyticsError(w, err)
		return
	}

	report, cached, err := h.insights.Generate(r.Context(), insights.Request{
		FunnelID:  q.FunnelID,
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		Filters:   q.Filters,
		SegmentBy: q.SegmentBy,
		Audience:  r.URL.Query().Get("audience"),
	}, m)
	if err != nil {
		switch {
		case errors.Is(err, insights.ErrNotConfigured):
			respondError(w, http.StatusServiceUnavailable, "INSIGHTS_DISABLED", "Insight generation is not configured", nil)
		case errors.Is(err, insights.ErrUpstream):
			respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Insight generation is temporarily unavailable", err)
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate insights", err)
		}
		return
	}

	respondSuccess(w, http.StatusOK, report, start, cached)
}

// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package api

import (
	"net/http"
	"time"
)

// EventTypes lists the distinct event types stored for a project, for
// populating funnel stage pickers.
func (h *Handler) EventTypes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "project_id is required", nil)
		return
	}

	if _, err := h.registry.GetProject(projectID, DefaultOrgID); err != nil {
		respondRegistryError(w, err, "Project not found")
		return
	}

	types, err := h.store.EventTypes(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list event types", err)
		return
	}
	if types == nil {
		types = []string{}
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"project_id":  projectID,
		"event_types": types,
	}, start, false)
}

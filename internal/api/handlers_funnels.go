// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/funnelgraph/internal/models"
)

// FunnelRequest is the payload for creating or updating a funnel
// definition. Stage sequencing rules (1..5 stages, contiguous orders)
// are enforced by the registry, not here.
type FunnelRequest struct {
	ProjectID   string         `json:"project_id" validate:"required"`
	Name        string         `json:"name" validate:"required,max=200"`
	Description string         `json:"description,omitempty" validate:"max=1000"`
	Stages      []models.Stage `json:"stages" validate:"required,dive"`
	IsActive    *bool          `json:"is_active,omitempty"`
}

// ListFunnels returns funnel definitions, optionally scoped to one
// project via the project_id query parameter.
func (h *Handler) ListFunnels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	projectID := r.URL.Query().Get("project_id")
	funnels := h.registry.ListFunnels(DefaultOrgID, projectID)

	respondSuccess(w, http.StatusOK, funnels, start, false)
}

// CreateFunnel defines a new funnel for a project.
func (h *Handler) CreateFunnel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req FunnelRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	fn, err := h.registry.CreateFunnel(DefaultOrgID, req.ProjectID, req.Name, req.Description, req.Stages)
	if err != nil {
		respondRegistryError(w, err, "Project not found")
		return
	}

	respondSuccess(w, http.StatusCreated, fn, start, false)
}

// GetFunnel returns one funnel definition.
func (h *Handler) GetFunnel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	fn, err := h.registry.GetFunnel(chi.URLParam(r, "funnelID"), DefaultOrgID)
	if err != nil {
		respondRegistryError(w, err, "Funnel not found")
		return
	}

	respondSuccess(w, http.StatusOK, fn, start, false)
}

// UpdateFunnel replaces a funnel's definition. Omitting is_active keeps
// the funnel active.
func (h *Handler) UpdateFunnel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req FunnelRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	fn, err := h.registry.UpdateFunnel(chi.URLParam(r, "funnelID"), DefaultOrgID, req.Name, req.Description, req.Stages, isActive)
	if err != nil {
		respondRegistryError(w, err, "Funnel not found")
		return
	}

	respondSuccess(w, http.StatusOK, fn, start, false)
}

// DeleteFunnel removes a funnel definition.
func (h *Handler) DeleteFunnel(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteFunnel(chi.URLParam(r, "funnelID"), DefaultOrgID); err != nil {
		respondRegistryError(w, err, "Funnel not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

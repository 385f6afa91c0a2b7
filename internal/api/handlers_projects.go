// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/funnelgraph/internal/models"
	"github.com/tomtom215/funnelgraph/internal/registry"
)

// ProjectRequest is the payload for creating or updating a project.
type ProjectRequest struct {
	Name   string `json:"name" validate:"required,max=200"`
	Domain string `json:"domain,omitempty" validate:"max=200"`
}

// ListProjects returns all projects with masked API keys.
func (h *Handler) ListProjects(w http.ResponseWriter, _ *http.Request) {
	start := time.Now()

	projects := h.registry.ListProjects(DefaultOrgID)
	masked := make([]models.Project, 0, len(projects))
	for i := range projects {
		masked = append(masked, maskProject(&projects[i]))
	}

	respondSuccess(w, http.StatusOK, masked, start, false)
}

// CreateProject registers a new project. The response is the only place
// the full API key is ever exposed.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ProjectRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	project, err := h.registry.CreateProject(DefaultOrgID, req.Name, req.Domain)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create project", err)
		return
	}

	respondSuccess(w, http.StatusCreated, project, start, false)
}

// GetProject returns one project with a masked API key.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	project, err := h.registry.GetProject(chi.URLParam(r, "projectID"), DefaultOrgID)
	if err != nil {
		respondRegistryError(w, err, "Project not found")
		return
	}

	respondSuccess(w, http.StatusOK, maskProject(project), start, false)
}

// UpdateProject replaces a project's name and domain.
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ProjectRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	project, err := h.registry.UpdateProject(chi.URLParam(r, "projectID"), DefaultOrgID, req.Name, req.Domain)
	if err != nil {
		respondRegistryError(w, err, "Project not found")
		return
	}

	respondSuccess(w, http.StatusOK, maskProject(project), start, false)
}

// DeleteProject removes a project and its funnel definitions. Stored
// event partitions are retained.
func (h *Handler) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteProject(chi.URLParam(r, "projectID"), DefaultOrgID); err != nil {
		respondRegistryError(w, err, "Project not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// respondRegistryError maps registry errors to API responses: not-found
// to 404, stage validation to 400, everything else to 500.
func respondRegistryError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", notFoundMsg, nil)
	case errors.Is(err, registry.ErrInvalidStages):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Registry operation failed", err)
	}
}

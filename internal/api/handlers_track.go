// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/funnelgraph/internal/logging"
	"github.com/tomtom215/funnelgraph/internal/models"
)

// TrackEventRequest is the payload for a single tracked event.
// Timestamp is optional RFC 3339; the server stamps ingestion time when
// it is absent.
type TrackEventRequest struct {
	EventType  string                 `json:"event_type" validate:"required,max=100"`
	UserID     string                 `json:"user_id" validate:"required,max=200"`
	SessionID  string                 `json:"session_id,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	URL        string                 `json:"url,omitempty"`
	Referrer   string                 `json:"referrer,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	Timestamp  string                 `json:"timestamp,omitempty"`

	UserIntent      string `json:"user_intent,omitempty"`
	ContentCategory string `json:"content_category,omitempty"`
	Surface         string `json:"surface,omitempty"`
	UserTenure      string `json:"user_tenure,omitempty"`

	ExperimentID string `json:"experiment_id,omitempty"`
	Variant      string `json:"variant,omitempty"`
}

// TrackBatchRequest is the payload for the batch tracking endpoint.
type TrackBatchRequest struct {
	Events []TrackEventRequest `json:"events" validate:"required,min=1,dive"`
}

// resolveProject maps the X-API-Key header to a project. A missing or
// unrecognized key falls back to the default (oldest) project so that
// demo snippets work before key distribution is set up.
func (h *Handler) resolveProject(r *http.Request) (*models.Project, error) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		if project, err := h.registry.GetProjectByAPIKey(key); err == nil {
			return project, nil
		}
		logging.Warn().Msg("Unrecognized API key, using default project")
	}
	return h.registry.FirstProject()
}

// toEvent converts a tracking payload into an event. An unparseable
// timestamp is dropped rather than rejected; the tracker stamps
// ingestion time instead.
func (req *TrackEventRequest) toEvent(projectID string) models.Event {
	event := models.Event{
		ProjectID:       projectID,
		EventType:       req.EventType,
		UserID:          req.UserID,
		SessionID:       req.SessionID,
		Properties:      req.Properties,
		URL:             req.URL,
		Referrer:        req.Referrer,
		UserAgent:       req.UserAgent,
		UserIntent:      req.UserIntent,
		ContentCategory: req.ContentCategory,
		Surface:         req.Surface,
		UserTenure:      req.UserTenure,
		ExperimentID:    req.ExperimentID,
		Variant:         req.Variant,
	}
	if req.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			event.OccurredAt = ts.UTC()
		}
	}
	return event
}

// TrackEvent buffers a single event for its project.
func (h *Handler) TrackEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req TrackEventRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	project, err := h.resolveProject(r)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No project configured for tracking", err)
		return
	}

	event := req.toEvent(project.ID)
	if err := h.tracker.Add(r.Context(), event); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record event", err)
		return
	}

	respondSuccess(w, http.StatusAccepted, map[string]interface{}{
		"success":    true,
		"project_id": project.ID,
	}, start, false)
}

// TrackBatch buffers a batch of events and flushes the project
// immediately, bypassing the periodic flush interval.
func (h *Handler) TrackBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req TrackBatchRequest
	if apiErr := decodeJSONBody(r, &req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	maxBatch := h.config.API.MaxBatchEvents
	if maxBatch > 0 && len(req.Events) > maxBatch {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Batch exceeds the maximum event count", nil)
		return
	}

	project, err := h.resolveProject(r)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "No project configured for tracking", err)
		return
	}

	events := make([]models.Event, 0, len(req.Events))
	for i := range req.Events {
		events = append(events, req.Events[i].toEvent(project.ID))
	}

	if err := h.tracker.AddBatch(r.Context(), project.ID, events); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record event batch", err)
		return
	}

	respondSuccess(w, http.StatusAccepted, map[string]interface{}{
		"success":          true,
		"events_processed": len(events),
		"project_id":       project.ID,
	}, start, false)
}

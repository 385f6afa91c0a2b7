// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

// Package models defines the shared data structures for Funnelgraph:
// tracked events, funnel and project definitions, computed funnel metrics,
// and the standard API response envelope.
package models

import "time"

// Segment dimension names. These are the only dimensions accepted for
// filtering and breakdown; anything else is rejected at the API boundary
// before it reaches the funnel engine.
const (
	DimensionUserIntent      = "user_intent"
	DimensionContentCategory = "content_category"
	DimensionSurface         = "surface"
	DimensionUserTenure      = "user_tenure"
)

// SegmentDimensions lists all known segment dimensions in a stable order.
var SegmentDimensions = []string{
	DimensionUserIntent,
	DimensionContentCategory,
	DimensionSurface,
	DimensionUserTenure,
}

// UnknownSegment is the default for enum-like segment attributes that were
// not supplied at ingestion time. ContentCategory is free-form and defaults
// to the empty string instead.
const UnknownSegment = "Unknown"

// KnownDimension reports whether name is one of the four segment dimensions.
func KnownDimension(name string) bool {
	for _, d := range SegmentDimensions {
		if d == name {
			return true
		}
	}
	return false
}

// Event is a single immutable tracked fact. Events are append-only: once
// written to a partition they are never mutated.
//
// OccurredAt is used for date-range partitioning and filtering only; funnel
// stage membership is computed from the set of event types a user produced,
// not from event ordering.
type Event struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	EventType string `json:"event_type"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`

	Properties map[string]interface{} `json:"properties,omitempty"`

	URL       string `json:"url,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`

	// Segment attributes. Empty enum-like values are read back as "Unknown".
	UserIntent      string `json:"user_intent,omitempty"`
	ContentCategory string `json:"content_category,omitempty"`
	Surface         string `json:"surface,omitempty"`
	UserTenure      string `json:"user_tenure,omitempty"`

	// Experiment assignment, recorded for future analysis.
	ExperimentID string `json:"experiment_id,omitempty"`
	Variant      string `json:"variant,omitempty"`
}

// Segment returns the event's value for the given dimension after applying
// ingestion defaults: user_intent, surface and user_tenure fall back to
// "Unknown", content_category to the empty string. Returns empty string for
// an unknown dimension; callers validate the dimension first.
func (e *Event) Segment(dimension string) string {
	switch dimension {
	case DimensionUserIntent:
		return defaultSegment(e.UserIntent)
	case DimensionSurface:
		return defaultSegment(e.Surface)
	case DimensionUserTenure:
		return defaultSegment(e.UserTenure)
	case DimensionContentCategory:
		return e.ContentCategory
	}
	return ""
}

func defaultSegment(v string) string {
	if v == "" {
		return UnknownSegment
	}
	return v
}

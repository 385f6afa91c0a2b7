// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package models

import "time"

// MaxStages is the product invariant on funnel length. It is enforced when a
// funnel is defined, never at query time.
const MaxStages = 5

// Stage is one ordered step in a funnel, satisfied by a specific event type.
// Order values within a funnel must form a contiguous 1..N sequence.
type Stage struct {
	Order     int    `json:"order" validate:"required,gte=1,lte=5"`
	Name      string `json:"name" validate:"required,max=100"`
	EventType string `json:"event_type" validate:"required,max=100"`
}

// Funnel is an ordered sequence of stages defining a conversion journey.
// Funnels are owned by an organization and scoped to a project.
type Funnel struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Stages         []Stage   `json:"stages"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Project is an event-collection scope. The API key authenticates tracking
// calls; it is returned in full only on creation and masked everywhere else.
type Project struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	APIKey         string    `json:"api_key,omitempty"`
	Domain         string    `json:"domain,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MaskedAPIKey returns the project's API key shortened to a recognizable
// prefix. Keys short enough to already be masked are returned unchanged.
func (p *Project) MaskedAPIKey() string {
	if len(p.APIKey) > 13 {
		return p.APIKey[:10] + "***"
	}
	return p.APIKey
}

// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

// Package api provides HTTP routing and handlers for Funnelgraph: project
// and funnel management, event tracking, funnel analytics with segment
// filtering and breakdown, and model-generated insights.
package api

import (
	"context"
	"time"

	"github.com/tomtom215/funnelgraph/internal/cache"
	"github.com/tomtom215/funnelgraph/internal/config"
	"github.com/tomtom215/funnelgraph/internal/funnel"
	"github.com/tomtom215/funnelgraph/internal/ingest"
	"github.com/tomtom215/funnelgraph/internal/insights"
	"github.com/tomtom215/funnelgraph/internal/models"
	"github.com/tomtom215/funnelgraph/internal/registry"
)

// DefaultOrgID scopes all registry operations until multi-tenant auth
// lands. Funnel and project records carry the organization explicitly so
// migrating to real tenancy is a lookup change, not a data change.
const DefaultOrgID = "default-org"

// analyticsCacheTTL bounds staleness of funnel metrics responses; the
// cache is also cleared whenever an ingest flush lands new events.
const analyticsCacheTTL = 5 * time.Minute

// EventStore is the storage surface the handlers read from.
type EventStore interface {
	EventTypes(ctx context.Context, projectID string) ([]string, error)
	Ping(ctx context.Context) error
}

// Handler holds the collaborators for all HTTP endpoints.
type Handler struct {
	store     EventStore
	registry  *registry.Store
	funnels   *funnel.Service
	tracker   *ingest.Tracker
	insights  *insights.Generator
	cache     *cache.Cache
	config    *config.Config
	startTime time.Time
}

// NewHandler creates the API handler. The analytics cache is cleared on
// every ingest flush so freshly tracked events become visible without
// waiting out the TTL.
func NewHandler(store EventStore, reg *registry.Store, funnels *funnel.Service, tracker *ingest.Tracker, gen *insights.Generator, cfg *config.Config) *Handler {
	ttl := analyticsCacheTTL
	if cfg != nil && cfg.API.CacheTTL > 0 {
		ttl = cfg.API.CacheTTL
	}

	h := &Handler{
		store:     store,
		registry:  reg,
		funnels:   funnels,
		tracker:   tracker,
		insights:  gen,
		cache:     cache.New(ttl),
		config:    cfg,
		startTime: time.Now(),
	}

	if tracker != nil {
		tracker.OnFlush(h.cache.Clear)
	}
	return h
}

// maskProject returns a copy with the API key shortened for display.
func maskProject(p *models.Project) models.Project {
	masked := *p
	masked.APIKey = p.MaskedAPIKey()
	return masked
}

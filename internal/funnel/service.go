// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package funnel

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/funnelgraph/internal/models"
)

// EventSource provides the raw events for a project and inclusive date range,
// narrowed to the given event types. Implementations own the degradation
// policy for missing or unreadable partitions: they log and return an empty
// slice rather than failing, since sparse historical data is routine.
type EventSource interface {
	FetchEvents(ctx context.Context, projectID string, start, end time.Time, eventTypes []string) ([]models.Event, error)
}

// DefinitionSource resolves a funnel definition within an organization.
// A miss is reported via the implementation's not-found error, which the
// service passes through unchanged for the API layer to map.
type DefinitionSource interface {
	ResolveFunnel(ctx context.Context, funnelID, orgID string) (*models.Funnel, error)
}

// Service ties the engine to its collaborators: it resolves the funnel
// definition, fetches the event snapshot, computes stage counts and formats
// the result. It is stateless and safe for concurrent use.
type Service struct {
	definitions DefinitionSource
	events      EventSource
}

// NewService creates a funnel metrics service.
func NewService(definitions DefinitionSource, events EventSource) *Service {
	return &Service{definitions: definitions, events: events}
}

// Query describes one funnel metrics request. Start and End are inclusive
// day bounds, already validated by the caller (end >= start, span <= 90
// days). Filters and SegmentBy are optional.
type Query struct {
	FunnelID  string
	OrgID     string
	Start     time.Time
	End       time.Time
	Filters   SegmentFilters
	SegmentBy string
}

// Metrics computes the formatted funnel metrics for one query.
//
// The fetch-then-compute sequence is the only suspension point; once the
// snapshot is in memory the computation is CPU-bound. Results are computed
// fresh on every call — any caching sits above this service.
func (s *Service) Metrics(ctx context.Context, q Query) (*models.FunnelMetrics, error) {
	fn, err := s.definitions.ResolveFunnel(ctx, q.FunnelID, q.OrgID)
	if err != nil {
		return nil, err
	}

	eventTypes := make([]string, 0, len(fn.Stages))
	for _, stage := range fn.Stages {
		eventTypes = append(eventTypes, stage.EventType)
	}

	events, err := s.events.FetchEvents(ctx, fn.ProjectID, q.Start, q.End, eventTypes)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	result := &models.FunnelMetrics{
		FunnelID:   fn.ID,
		FunnelName: fn.Name,
		DateRange: models.DateRange{
			Start: q.Start.Format("2006-01-02"),
			End:   q.End.Format("2006-01-02"),
		},
	}

	if q.SegmentBy == "" {
		counts, err := ComputeCounts(events, fn.Stages, q.Filters)
		if err != nil {
			return nil, err
		}
		summary := Summarize(FormatStages(counts, fn.Stages))
		result.Stages = summary.Stages
		result.TotalUsers = &summary.TotalUsers
		result.CompletedUsers = &summary.CompletedUsers
		result.OverallConversionRate = &summary.OverallConversionRate
		return result, nil
	}

	breakdown, err := ComputeBreakdown(events, fn.Stages, q.Filters, q.SegmentBy)
	if err != nil {
		return nil, err
	}

	result.SegmentBy = q.SegmentBy
	result.Segments = make(map[string]models.SegmentMetrics, len(breakdown.Segments))
	for value, counts := range breakdown.Segments {
		result.Segments[value] = Summarize(FormatStages(counts, fn.Stages))
	}
	total := Summarize(FormatStages(breakdown.Total, fn.Stages))
	result.Total = &total

	return result, nil
}

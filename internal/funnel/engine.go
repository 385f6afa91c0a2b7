// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

// Package funnel implements the conversion funnel computation engine and the
// metrics formatter built on top of it.
//
// The engine is a pure function over an in-memory event slice: it holds no
// state, takes no locks, and two concurrent computations are fully
// independent. Callers fetch events from storage first and hand the snapshot
// to the engine; I/O never happens here.
//
// Stage membership is existence-based: a user is at stage i when their set of
// distinct event types within the window contains stage i's event type and
// the event types of every earlier stage. Timestamps play no part in
// membership — reaching "purchase" before "page_view" within the window still
// counts. This mirrors the behavior the product has always shipped; see
// DESIGN.md for the ordering discussion.
package funnel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/funnelgraph/internal/models"
)

// Contract violation errors. The engine returns errors only for malformed
// input; "no events" is a legitimate all-zero result, never an error.
var (
	// ErrNoStages indicates an empty stage list reached the engine. Funnel
	// definitions are validated at creation time, so this is a caller bug.
	ErrNoStages = errors.New("funnel has no stages")

	// ErrUnknownDimension indicates a filter or breakdown dimension outside
	// the four known segment dimensions.
	ErrUnknownDimension = errors.New("unknown segment dimension")
)

// SegmentFilters maps a segment dimension to an allow-list of values. An
// event passes a dimension's filter when its (defaulted) value for that
// dimension is in the list, or when no list was supplied for that dimension.
// Filters combine with logical AND across dimensions.
type SegmentFilters map[string][]string

// Validate checks that every filter dimension is a known one.
func (f SegmentFilters) Validate() error {
	for dim := range f {
		if !models.KnownDimension(dim) {
			return fmt.Errorf("%w: %q", ErrUnknownDimension, dim)
		}
	}
	return nil
}

// StageCounts maps stage name to the number of distinct users who reached
// that stage in declared order.
type StageCounts map[string]int

// Breakdown holds per-segment stage counts alongside the total computed over
// all filtered events with the breakdown dimension ignored. Total is always
// present; Segments may be empty when every event carried an excluded
// (Unknown/empty/"None") value.
type Breakdown struct {
	Total    StageCounts
	Segments map[string]StageCounts
}

// ComputeCounts computes distinct-user counts per stage over events that have
// already been narrowed to the requested project and date range.
//
// Events are first filtered to the stages' event types and the supplied
// segment filters. A user then counts toward stage i only when their distinct
// event-type set contains stage i's event type and the event types of all
// earlier stages (the strict-prerequisite funnel invariant). Counts are
// monotonically non-increasing across stages by construction.
func ComputeCounts(events []models.Event, stages []models.Stage, filters SegmentFilters) (StageCounts, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	filtered := filterEvents(events, stages, filters)
	return countStages(filtered, stages), nil
}

// ComputeBreakdown computes one StageCounts per distinct value of the
// breakdown dimension, plus a Total over all filtered events with the
// dimension ignored.
//
// Segment values equal to "Unknown", the empty string, or the literal "None"
// (after trimming) are excluded from Segments but still contribute to Total;
// the exclusion is applied here, at partition time, so Total remains the full
// unfiltered-by-segment aggregate.
func ComputeBreakdown(events []models.Event, stages []models.Stage, filters SegmentFilters, dimension string) (*Breakdown, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	if !models.KnownDimension(dimension) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, dimension)
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	filtered := filterEvents(events, stages, filters)

	result := &Breakdown{
		Total:    countStages(filtered, stages),
		Segments: make(map[string]StageCounts),
	}

	partitions := make(map[string][]models.Event)
	for i := range filtered {
		value := strings.TrimSpace(filtered[i].Segment(dimension))
		if excludedSegmentValue(value) {
			continue
		}
		partitions[value] = append(partitions[value], filtered[i])
	}
	for value, part := range partitions {
		result.Segments[value] = countStages(part, stages)
	}

	return result, nil
}

// excludedSegmentValue reports whether a segment value is hidden from the
// per-segment breakdown. "None" appears in historical data written by early
// trackers that serialized missing values literally.
func excludedSegmentValue(v string) bool {
	return v == "" || v == models.UnknownSegment || v == "None"
}

// filterEvents narrows events to those matching a stage event type and
// passing every supplied segment filter.
func filterEvents(events []models.Event, stages []models.Stage, filters SegmentFilters) []models.Event {
	stageTypes := make(map[string]struct{}, len(stages))
	for _, s := range stages {
		stageTypes[s.EventType] = struct{}{}
	}

	out := make([]models.Event, 0, len(events))
	for i := range events {
		if _, ok := stageTypes[events[i].EventType]; !ok {
			continue
		}
		if !passesFilters(&events[i], filters) {
			continue
		}
		out = append(out, events[i])
	}
	return out
}

func passesFilters(e *models.Event, filters SegmentFilters) bool {
	for dim, allowed := range filters {
		if len(allowed) == 0 {
			continue
		}
		value := e.Segment(dim)
		match := false
		for _, v := range allowed {
			if value == v {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}

// countStages builds per-user distinct event-type sets and counts the users
// at each stage under the strict-prerequisite rule.
func countStages(events []models.Event, stages []models.Stage) StageCounts {
	userTypes := make(map[string]map[string]struct{})
	for i := range events {
		set, ok := userTypes[events[i].UserID]
		if !ok {
			set = make(map[string]struct{})
			userTypes[events[i].UserID] = set
		}
		set[events[i].EventType] = struct{}{}
	}

	counts := make(StageCounts, len(stages))
	for i, stage := range stages {
		n := 0
		for _, set := range userTypes {
			if userAtStage(set, stages, i) {
				n++
			}
		}
		counts[stage.Name] = n
	}
	return counts
}

// userAtStage reports whether a user's event-type set satisfies stage i and
// every stage before it.
func userAtStage(set map[string]struct{}, stages []models.Stage, i int) bool {
	for j := 0; j <= i; j++ {
		if _, ok := set[stages[j].EventType]; !ok {
			return false
		}
	}
	return true
}

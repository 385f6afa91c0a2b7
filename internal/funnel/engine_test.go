// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package funnel

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/funnelgraph/internal/models"
)

// checkoutStages is the canonical three-step funnel used across the engine
// tests: page_view -> add_to_cart -> purchase.
func checkoutStages() []models.Stage {
	return []models.Stage{
		{Order: 1, Name: "View", EventType: "page_view"},
		{Order: 2, Name: "Cart", EventType: "add_to_cart"},
		{Order: 3, Name: "Buy", EventType: "purchase"},
	}
}

// ev builds a test event. Variadic segment setters keep the tables compact.
func ev(userID, eventType string, mods ...func(*models.Event)) models.Event {
	e := models.Event{
		ID:         userID + "-" + eventType,
		ProjectID:  "p1",
		EventType:  eventType,
		UserID:     userID,
		OccurredAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, m := range mods {
		m(&e)
	}
	return e
}

func withIntent(v string) func(*models.Event)  { return func(e *models.Event) { e.UserIntent = v } }
func withSurface(v string) func(*models.Event) { return func(e *models.Event) { e.Surface = v } }
func withCategory(v string) func(*models.Event) {
	return func(e *models.Event) { e.ContentCategory = v }
}

func TestComputeCountsStrictPrerequisites(t *testing.T) {
	// User A completes all stages, B stops at the cart, C only views,
	// D has cart+purchase but never viewed and must count nowhere.
	events := []models.Event{
		ev("A", "page_view"), ev("A", "add_to_cart"), ev("A", "purchase"),
		ev("B", "page_view"), ev("B", "add_to_cart"),
		ev("C", "page_view"),
		ev("D", "add_to_cart"), ev("D", "purchase"),
	}

	counts, err := ComputeCounts(events, checkoutStages(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := StageCounts{"View": 3, "Cart": 2, "Buy": 1}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("counts = %v, want %v", counts, want)
	}
}

func TestComputeCountsIgnoresTimestampOrder(t *testing.T) {
	// Membership is existence-based: a purchase recorded before the page
	// view still counts, because the user's window set contains both types.
	earlier := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	events := []models.Event{
		ev("A", "purchase", func(e *models.Event) { e.OccurredAt = earlier }),
		ev("A", "add_to_cart"),
		ev("A", "page_view"),
	}

	counts, err := ComputeCounts(events, checkoutStages(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["Buy"] != 1 {
		t.Errorf("Buy = %d, want 1 (existence-based membership)", counts["Buy"])
	}
}

func TestComputeCountsDistinctUsersNotEvents(t *testing.T) {
	// One noisy user produces many events but counts once per stage.
	var events []models.Event
	for i := 0; i < 10; i++ {
		events = append(events, ev("A", "page_view"))
	}
	events = append(events, ev("A", "add_to_cart"))

	counts, err := ComputeCounts(events, checkoutStages(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["View"] != 1 || counts["Cart"] != 1 {
		t.Errorf("counts = %v, want one distinct user at View and Cart", counts)
	}
}

func TestComputeCountsEmptyEvents(t *testing.T) {
	counts, err := ComputeCounts(nil, checkoutStages(), nil)
	if err != nil {
		t.Fatalf("zero events must not error: %v", err)
	}
	want := StageCounts{"View": 0, "Cart": 0, "Buy": 0}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("counts = %v, want all zeros", counts)
	}
}

func TestComputeCountsNoStages(t *testing.T) {
	_, err := ComputeCounts(nil, nil, nil)
	if !errors.Is(err, ErrNoStages) {
		t.Errorf("expected ErrNoStages, got %v", err)
	}
}

func TestComputeCountsUnknownFilterDimension(t *testing.T) {
	_, err := ComputeCounts(nil, checkoutStages(), SegmentFilters{"device": {"ios"}})
	if !errors.Is(err, ErrUnknownDimension) {
		t.Errorf("expected ErrUnknownDimension, got %v", err)
	}
}

func TestComputeCountsSegmentFilters(t *testing.T) {
	events := []models.Event{
		ev("A", "page_view", withIntent("Planner")),
		ev("A", "add_to_cart", withIntent("Planner")),
		ev("B", "page_view", withIntent("Browser")),
		ev("C", "page_view"), // no intent -> Unknown
	}

	tests := []struct {
		name    string
		filters SegmentFilters
		want    StageCounts
	}{
		{
			name:    "planner only excludes other intents from every stage",
			filters: SegmentFilters{models.DimensionUserIntent: {"Planner"}},
			want:    StageCounts{"View": 1, "Cart": 1, "Buy": 0},
		},
		{
			name:    "filter matches defaulted Unknown",
			filters: SegmentFilters{models.DimensionUserIntent: {"Unknown"}},
			want:    StageCounts{"View": 1, "Cart": 0, "Buy": 0},
		},
		{
			name:    "empty allow-list means no filter for that dimension",
			filters: SegmentFilters{models.DimensionUserIntent: {}},
			want:    StageCounts{"View": 3, "Cart": 1, "Buy": 0},
		},
		{
			name: "filters AND across dimensions",
			filters: SegmentFilters{
				models.DimensionUserIntent: {"Planner"},
				models.DimensionSurface:    {"Home"},
			},
			want: StageCounts{"View": 0, "Cart": 0, "Buy": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			counts, err := ComputeCounts(events, checkoutStages(), tt.filters)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(counts, tt.want) {
				t.Errorf("counts = %v, want %v", counts, tt.want)
			}
		})
	}
}

func TestComputeCountsIgnoresNonStageEvents(t *testing.T) {
	events := []models.Event{
		ev("A", "page_view"),
		ev("A", "scroll"),
		ev("A", "video_play"),
	}
	counts, err := ComputeCounts(events, checkoutStages(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["View"] != 1 || counts["Cart"] != 0 {
		t.Errorf("counts = %v, non-stage events must not affect counts", counts)
	}
}

func TestComputeCountsMonotonicity(t *testing.T) {
	// Larger mixed population; counts must be non-increasing across stages.
	events := []models.Event{
		ev("u1", "page_view"), ev("u1", "add_to_cart"), ev("u1", "purchase"),
		ev("u2", "page_view"), ev("u2", "add_to_cart"),
		ev("u3", "page_view"),
		ev("u4", "page_view"), ev("u4", "purchase"), // skips cart
		ev("u5", "add_to_cart"),
		ev("u6", "page_view"), ev("u6", "add_to_cart"), ev("u6", "purchase"),
	}
	stages := checkoutStages()

	counts, err := ComputeCounts(events, stages, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(stages); i++ {
		if counts[stages[i].Name] > counts[stages[i-1].Name] {
			t.Errorf("monotonicity violated: %s=%d > %s=%d",
				stages[i].Name, counts[stages[i].Name],
				stages[i-1].Name, counts[stages[i-1].Name])
		}
	}
	// u4 skipped the cart, so they must not count at Buy.
	if counts["Buy"] != 2 {
		t.Errorf("Buy = %d, want 2 (u1, u6)", counts["Buy"])
	}
}

func TestComputeCountsIdempotent(t *testing.T) {
	events := []models.Event{
		ev("A", "page_view"), ev("A", "add_to_cart"),
		ev("B", "page_view"),
	}
	first, err := ComputeCounts(events, checkoutStages(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := ComputeCounts(events, checkoutStages(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated computation differs: %v vs %v", first, second)
	}
}

func TestComputeBreakdownPartitionsAndTotal(t *testing.T) {
	events := []models.Event{
		ev("A", "page_view", withSurface("Home")),
		ev("A", "add_to_cart", withSurface("Home")),
		ev("B", "page_view", withSurface("Search")),
		ev("C", "page_view", withSurface("Unknown")),
		ev("D", "page_view"), // defaults to Unknown
	}

	bd, err := ComputeBreakdown(events, checkoutStages(), nil, models.DimensionSurface)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Unknown surfaces are excluded from the breakdown...
	if _, ok := bd.Segments["Unknown"]; ok {
		t.Error("Unknown segment must be excluded from breakdown")
	}
	if len(bd.Segments) != 2 {
		t.Errorf("segments = %v, want Home and Search only", bd.Segments)
	}
	if bd.Segments["Home"]["View"] != 1 || bd.Segments["Home"]["Cart"] != 1 {
		t.Errorf("Home = %v", bd.Segments["Home"])
	}
	if bd.Segments["Search"]["View"] != 1 {
		t.Errorf("Search = %v", bd.Segments["Search"])
	}

	// ...but still counted in the total.
	if bd.Total["View"] != 4 {
		t.Errorf("Total View = %d, want 4 (Unknown users included)", bd.Total["View"])
	}
}

func TestComputeBreakdownExcludedValues(t *testing.T) {
	events := []models.Event{
		ev("A", "page_view", withCategory("None")),
		ev("B", "page_view", withCategory("  ")),
		ev("C", "page_view", withCategory("recipes")),
		ev("D", "page_view"),
	}

	bd, err := ComputeBreakdown(events, checkoutStages(), nil, models.DimensionContentCategory)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bd.Segments) != 1 {
		t.Errorf("segments = %v, want only recipes", bd.Segments)
	}
	if bd.Segments["recipes"]["View"] != 1 {
		t.Errorf("recipes = %v", bd.Segments["recipes"])
	}
	if bd.Total["View"] != 4 {
		t.Errorf("Total View = %d, want 4", bd.Total["View"])
	}
}

func TestComputeBreakdownTotalIndependentOfSegmentPresence(t *testing.T) {
	// Total must equal the aggregate computed ignoring the breakdown
	// dimension, no matter which segments survive exclusion.
	events := []models.Event{
		ev("A", "page_view", withSurface("Home")),
		ev("B", "page_view"), // Unknown, excluded from segments
	}

	bd, err := ComputeBreakdown(events, checkoutStages(), nil, models.DimensionSurface)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	agg, err := ComputeCounts(events, checkoutStages(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(bd.Total, agg) {
		t.Errorf("breakdown total %v != aggregate %v", bd.Total, agg)
	}
}

func TestComputeBreakdownRespectsFilters(t *testing.T) {
	events := []models.Event{
		ev("A", "page_view", withIntent("Planner"), withSurface("Home")),
		ev("B", "page_view", withIntent("Browser"), withSurface("Home")),
	}

	bd, err := ComputeBreakdown(events, checkoutStages(),
		SegmentFilters{models.DimensionUserIntent: {"Planner"}}, models.DimensionSurface)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bd.Segments["Home"]["View"] != 1 {
		t.Errorf("Home View = %d, want 1 (Browser filtered out)", bd.Segments["Home"]["View"])
	}
	if bd.Total["View"] != 1 {
		t.Errorf("Total View = %d, want 1", bd.Total["View"])
	}
}

func TestComputeBreakdownUnknownDimension(t *testing.T) {
	_, err := ComputeBreakdown(nil, checkoutStages(), nil, "platform")
	if !errors.Is(err, ErrUnknownDimension) {
		t.Errorf("expected ErrUnknownDimension, got %v", err)
	}
}

func TestComputeBreakdownEmptyEvents(t *testing.T) {
	bd, err := ComputeBreakdown(nil, checkoutStages(), nil, models.DimensionSurface)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bd.Segments) != 0 {
		t.Errorf("segments = %v, want none", bd.Segments)
	}
	want := StageCounts{"View": 0, "Cart": 0, "Buy": 0}
	if !reflect.DeepEqual(bd.Total, want) {
		t.Errorf("total = %v, want all zeros", bd.Total)
	}
}

func TestSingleStageFunnel(t *testing.T) {
	stages := []models.Stage{{Order: 1, Name: "Signup", EventType: "signup"}}
	events := []models.Event{ev("A", "signup"), ev("B", "signup"), ev("C", "other")}

	counts, err := ComputeCounts(events, stages, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts["Signup"] != 2 {
		t.Errorf("Signup = %d, want 2", counts["Signup"])
	}
}

// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package models

// StageMetric is one row of a formatted funnel table.
//
// ConversionRate is the percentage of first-stage users who reached this
// stage; DropOffRate is the percentage of the previous stage's users who did
// not. Both are rounded to two decimals. The first stage always has
// DropOffRate 0, and ConversionRate 100 whenever it has any users.
type StageMetric struct {
	StageName      string  `json:"stage_name"`
	StageOrder     int     `json:"stage_order"`
	Users          int     `json:"users"`
	ConversionRate float64 `json:"conversion_rate"`
	DropOffRate    float64 `json:"drop_off_rate"`
}

// SegmentMetrics is a formatted funnel table plus its derived summary values.
// The summary values are read off the formatted stage sequence (first stage
// users, last stage users, last stage conversion rate) so they can never
// disagree with the table.
type SegmentMetrics struct {
	Stages                []StageMetric `json:"stages"`
	TotalUsers            int           `json:"total_users"`
	CompletedUsers        int           `json:"completed_users"`
	OverallConversionRate float64       `json:"overall_conversion_rate"`
}

// DateRange is an inclusive day range.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// FunnelMetrics is the analytics response for one funnel query.
//
// In aggregate mode Stages/TotalUsers/CompletedUsers/OverallConversionRate
// are set and the breakdown fields are empty. In breakdown mode SegmentBy,
// Segments and Total are set instead: one table per discovered segment value,
// plus a Total computed over all filtered events regardless of segment.
type FunnelMetrics struct {
	FunnelID   string    `json:"funnel_id"`
	FunnelName string    `json:"funnel_name"`
	DateRange  DateRange `json:"date_range"`

	// Aggregate mode.
	Stages                []StageMetric `json:"stages,omitempty"`
	OverallConversionRate *float64      `json:"overall_conversion_rate,omitempty"`
	TotalUsers            *int          `json:"total_users,omitempty"`
	CompletedUsers        *int          `json:"completed_users,omitempty"`

	// Breakdown mode.
	SegmentBy string                    `json:"segment_by,omitempty"`
	Segments  map[string]SegmentMetrics `json:"segments,omitempty"`
	Total     *SegmentMetrics           `json:"total,omitempty"`
}

// InsightRecommendation is one actionable recommendation in an insights
// report.
type InsightRecommendation struct {
	Priority string `json:"priority"`
	Title    string `json:"title"`
	Action   string `json:"action"`
	Impact   string `json:"impact"`
	Effort   string `json:"effort"`
}

// InsightGuardrail names a metric to protect while acting on recommendations.
type InsightGuardrail struct {
	Metric    string `json:"metric"`
	Threshold string `json:"threshold"`
	Why       string `json:"why"`
}

// InsightExperiment is a suggested follow-up experiment.
type InsightExperiment struct {
	Hypothesis string `json:"hypothesis"`
	Test       string `json:"test"`
	Metric     string `json:"metric"`
}

// InsightsReport is the model-generated analysis of a computed funnel. It is
// produced strictly from formatted metrics; the funnel engine itself never
// sees it.
type InsightsReport struct {
	Insights        []string                `json:"insights"`
	Recommendations []InsightRecommendation `json:"recommendations"`
	Guardrails      []InsightGuardrail      `json:"guardrails"`
	Experiment      *InsightExperiment      `json:"experiment,omitempty"`
	Summary         string                  `json:"summary,omitempty"`
}

// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package funnel

import (
	"math"

	"github.com/tomtom215/funnelgraph/internal/models"
)

// FormatStages converts raw stage counts into the per-stage metric table, in
// the funnel's declared stage order.
//
// For each stage: conversion_rate is the percentage of first-stage users who
// reached it (0 when the first stage is empty), drop_off_rate the percentage
// of the previous stage's users who did not (0 for the first stage and
// whenever the previous stage is empty). Rates are rounded to two decimals.
func FormatStages(counts StageCounts, stages []models.Stage) []models.StageMetric {
	if len(stages) == 0 {
		return nil
	}

	first := counts[stages[0].Name]
	metrics := make([]models.StageMetric, 0, len(stages))
	prev := 0

	for i, stage := range stages {
		users := counts[stage.Name]

		var conversion float64
		if first > 0 {
			conversion = round2(float64(users) / float64(first) * 100)
		}

		var dropOff float64
		if i > 0 && prev > 0 {
			dropOff = round2(float64(prev-users) / float64(prev) * 100)
		}

		metrics = append(metrics, models.StageMetric{
			StageName:      stage.Name,
			StageOrder:     stage.Order,
			Users:          users,
			ConversionRate: conversion,
			DropOffRate:    dropOff,
		})
		prev = users
	}

	return metrics
}

// Summarize wraps a formatted stage table with its derived summary values.
// total_users, completed_users and overall_conversion_rate are read off the
// table (first stage users, last stage users, last stage conversion rate)
// rather than recomputed, so they are consistent with it by construction.
func Summarize(table []models.StageMetric) models.SegmentMetrics {
	summary := models.SegmentMetrics{Stages: table}
	if len(table) == 0 {
		return summary
	}
	summary.TotalUsers = table[0].Users
	summary.CompletedUsers = table[len(table)-1].Users
	summary.OverallConversionRate = table[len(table)-1].ConversionRate
	return summary
}

// round2 rounds half away from zero to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package funnel

import (
	"testing"
)

func TestFormatStagesRates(t *testing.T) {
	// A 3-stage checkout: View=3, Cart=2, Buy=1.
	counts := StageCounts{"View": 3, "Cart": 2, "Buy": 1}
	table := FormatStages(counts, checkoutStages())

	if len(table) != 3 {
		t.Fatalf("table length = %d, want 3", len(table))
	}

	tests := []struct {
		idx        int
		name       string
		users      int
		conversion float64
		dropOff    float64
	}{
		{0, "View", 3, 100, 0},
		{1, "Cart", 2, 66.67, 33.33},
		{2, "Buy", 1, 33.33, 50},
	}
	for _, tt := range tests {
		got := table[tt.idx]
		if got.StageName != tt.name {
			t.Errorf("stage %d name = %q, want %q", tt.idx, got.StageName, tt.name)
		}
		if got.Users != tt.users {
			t.Errorf("%s users = %d, want %d", tt.name, got.Users, tt.users)
		}
		if got.ConversionRate != tt.conversion {
			t.Errorf("%s conversion = %v, want %v", tt.name, got.ConversionRate, tt.conversion)
		}
		if got.DropOffRate != tt.dropOff {
			t.Errorf("%s drop-off = %v, want %v", tt.name, got.DropOffRate, tt.dropOff)
		}
	}
}

func TestFormatStagesZeroCounts(t *testing.T) {
	counts := StageCounts{"View": 0, "Cart": 0, "Buy": 0}
	table := FormatStages(counts, checkoutStages())

	for _, m := range table {
		if m.Users != 0 || m.ConversionRate != 0 || m.DropOffRate != 0 {
			t.Errorf("%s = %+v, want all zeros", m.StageName, m)
		}
	}
}

func TestFormatStagesFirstStageInvariants(t *testing.T) {
	// conversion_rate(stage 0) is 100 whenever it has users, else 0, and
	// its drop_off_rate is always 0.
	table := FormatStages(StageCounts{"View": 7}, checkoutStages()[:1])
	if table[0].ConversionRate != 100 {
		t.Errorf("first stage conversion = %v, want 100", table[0].ConversionRate)
	}
	if table[0].DropOffRate != 0 {
		t.Errorf("first stage drop-off = %v, want 0", table[0].DropOffRate)
	}
}

func TestFormatStagesEmptyPreviousStage(t *testing.T) {
	// A zero previous stage yields drop_off_rate 0, not a division error.
	counts := StageCounts{"View": 5, "Cart": 0, "Buy": 0}
	table := FormatStages(counts, checkoutStages())

	if table[1].DropOffRate != 100 {
		t.Errorf("Cart drop-off = %v, want 100", table[1].DropOffRate)
	}
	if table[2].DropOffRate != 0 {
		t.Errorf("Buy drop-off = %v, want 0 when previous stage is empty", table[2].DropOffRate)
	}
}

func TestFormatStagesStageOrderPreserved(t *testing.T) {
	counts := StageCounts{"View": 3, "Cart": 2, "Buy": 1}
	table := FormatStages(counts, checkoutStages())

	for i, m := range table {
		if m.StageOrder != i+1 {
			t.Errorf("position %d has stage_order %d, want %d", i, m.StageOrder, i+1)
		}
	}
}

func TestFormatStagesNoStages(t *testing.T) {
	if table := FormatStages(StageCounts{}, nil); table != nil {
		t.Errorf("table = %v, want nil for empty stage list", table)
	}
}

func TestSummarizeDerivedValues(t *testing.T) {
	table := FormatStages(StageCounts{"View": 3, "Cart": 2, "Buy": 1}, checkoutStages())
	summary := Summarize(table)

	if summary.TotalUsers != 3 {
		t.Errorf("total_users = %d, want 3", summary.TotalUsers)
	}
	if summary.CompletedUsers != 1 {
		t.Errorf("completed_users = %d, want 1", summary.CompletedUsers)
	}
	if summary.OverallConversionRate != 33.33 {
		t.Errorf("overall_conversion_rate = %v, want 33.33", summary.OverallConversionRate)
	}
}

func TestSummarizeEmptyTable(t *testing.T) {
	summary := Summarize(nil)
	if summary.TotalUsers != 0 || summary.CompletedUsers != 0 || summary.OverallConversionRate != 0 {
		t.Errorf("summary = %+v, want zero values", summary)
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{66.666666, 66.67},
		{33.333333, 33.33},
		{50.0, 50.0},
		{0.005, 0.01},
		{0, 0},
	}
	for _, tt := range tests {
		if got := round2(tt.in); got != tt.want {
			t.Errorf("round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatStagesMissingStageNameCountsAsZero(t *testing.T) {
	// A stage absent from the counts map formats as zero users, which keeps
	// formatting robust against a stage whose event type never occurred.
	counts := StageCounts{"View": 4}
	table := FormatStages(counts, checkoutStages())

	if table[1].Users != 0 {
		t.Errorf("Cart users = %d, want 0", table[1].Users)
	}
	if table[1].DropOffRate != 100 {
		t.Errorf("Cart drop-off = %v, want 100", table[1].DropOffRate)
	}
}

// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package insights

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tomtom215/funnelgraph/internal/models"
)

// systemPrompt keeps the model terse and structured. Every constraint is
// repeated in the user prompt because models drift on long inputs.
const systemPrompt = "You generate ultra-concise analytics insights. " +
	"Rules: max 4 insights, max 3 recommendations, every point has a number, " +
	"no filler words. Return valid JSON only."

// formatFunnelData renders computed metrics as plain text for the prompt.
func formatFunnelData(m *models.FunnelMetrics) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Funnel: %s\n", m.FunnelName)
	fmt.Fprintf(&b, "Date Range: %s to %s\n\n", m.DateRange.Start, m.DateRange.End)

	if len(m.Stages) > 0 {
		b.WriteString("Stage Metrics:\n")
		for _, s := range m.Stages {
			fmt.Fprintf(&b, "  - %s: %d users, %.1f%% conversion, %.1f%% drop-off\n",
				s.StageName, s.Users, s.ConversionRate, s.DropOffRate)
		}
		b.WriteString("\n")
	}

	if m.TotalUsers != nil {
		fmt.Fprintf(&b, "Total Users: %d\n", *m.TotalUsers)
		if m.CompletedUsers != nil {
			fmt.Fprintf(&b, "Completed Users: %d\n", *m.CompletedUsers)
		}
		if m.OverallConversionRate != nil {
			fmt.Fprintf(&b, "Overall Conversion Rate: %.2f%%\n", *m.OverallConversionRate)
		}
		b.WriteString("\n")
	}

	if len(m.Segments) > 0 {
		fmt.Fprintf(&b, "Segment Breakdown (%s):\n", m.SegmentBy)
		names := make([]string, 0, len(m.Segments))
		for name := range m.Segments {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			seg := m.Segments[name]
			fmt.Fprintf(&b, "  %s:\n", name)
			fmt.Fprintf(&b, "    - Total Users: %d\n", seg.TotalUsers)
			fmt.Fprintf(&b, "    - Completed Users: %d\n", seg.CompletedUsers)
			fmt.Fprintf(&b, "    - Conversion Rate: %.2f%%\n", seg.OverallConversionRate)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// audienceContexts tailor the prompt's tone per reader. Unknown values
// fall back to the data scientist framing.
var audienceContexts = map[string]string{
	"executive":       "Write for an executive: ultra-concise, strategic, bottom-line focused.",
	"product_manager": "Write for a product manager: actionable, decision-focused.",
	"data_scientist":  "Write for a data scientist: precise, data-driven.",
}

func audienceContext(audience string) string {
	if ctx, ok := audienceContexts[audience]; ok {
		return ctx
	}
	return audienceContexts["data_scientist"]
}

// buildPrompt assembles the user prompt around the formatted metrics.
func buildPrompt(m *models.FunnelMetrics, audience string) string {
	return audienceContext(audience) + "\n\n" + fmt.Sprintf(`Analyze this conversion funnel data. Be CONCISE and ACTIONABLE.

DATA:
%s
Return JSON with this EXACT structure:

{
  "insights": [
    "Max 4 insights. Each = 1 sentence with a NUMBER. Example: 'Save stage has 49%% drop-off, highest in funnel'"
  ],
  "recommendations": [
    {
      "priority": "High",
      "title": "5 words max - verb first",
      "action": "One specific action to take",
      "impact": "+X%% metric (be specific)",
      "effort": "Low/Med/High"
    }
  ],
  "guardrails": [
    {
      "metric": "What to protect",
      "threshold": "Alert if X drops below Y%%",
      "why": "One sentence risk"
    }
  ],
  "experiment": {
    "hypothesis": "If [change] then [outcome] by [amount]",
    "test": "Control: X, Treatment: Y",
    "metric": "Primary success metric"
  },
  "summary": "2 sentences max: biggest problem + top action"
}

RULES:
- Max 4 insights (1 sentence each, must include numbers)
- Max 3 recommendations (verb-first titles)
- Max 2 guardrails
- 1 experiment suggestion
- Every claim needs data
- No filler words

JSON only:`, formatFunnelData(m))
}

// stripCodeFences unwraps JSON from markdown code blocks, which some
// models emit despite the JSON-only instruction.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)

	if idx := strings.Index(content, "```json"); idx != -1 {
		content = content[idx+len("```json"):]
		if end := strings.Index(content, "```"); end != -1 {
			content = content[:end]
		}
		return strings.TrimSpace(content)
	}

	if idx := strings.Index(content, "```"); idx != -1 {
		content = content[idx+len("```"):]
		if end := strings.Index(content, "```"); end != -1 {
			content = content[:end]
		}
		return strings.TrimSpace(content)
	}

	return content
}

// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

// Package insights generates LLM-backed analyses of computed funnel
// metrics. Calls go through a circuit breaker so a degraded upstream
// does not stall analytics requests, and reports are cached for the
// configured TTL (24h by default) since the underlying metrics only
// change when new partitions land.
package insights

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker/v2"

	"github.com/tomtom215/funnelgraph/internal/cache"
	"github.com/tomtom215/funnelgraph/internal/config"
	"github.com/tomtom215/funnelgraph/internal/logging"
	"github.com/tomtom215/funnelgraph/internal/metrics"
	"github.com/tomtom215/funnelgraph/internal/models"
)

var (
	// ErrNotConfigured is returned when insight generation is requested
	// but no API key is configured.
	ErrNotConfigured = errors.New("insights: generation not configured")

	// ErrUpstream wraps failures of the model API, including an open
	// circuit breaker.
	ErrUpstream = errors.New("insights: upstream model unavailable")
)

// Request identifies one insights invocation; equal requests share a
// cache entry.
type Request struct {
	FunnelID  string              `json:"funnel_id"`
	StartDate string              `json:"start_date"`
	EndDate   string              `json:"end_date"`
	Filters   map[string][]string `json:"filters,omitempty"`
	SegmentBy string              `json:"segment_by,omitempty"`
	Audience  string              `json:"audience,omitempty"`
}

// Generator produces insight reports from formatted funnel metrics.
type Generator struct {
	client  openai.Client
	model   string
	enabled bool
	breaker *gobreaker.CircuitBreaker[string]
	cache   *cache.Cache
	ttl     time.Duration
}

// NewGenerator wires the OpenAI client, circuit breaker and report
// cache. With no API key the generator is created disabled and every
// Generate call returns ErrNotConfigured.
func NewGenerator(cfg *config.InsightsConfig) *Generator {
	g := &Generator{
		model:   cfg.Model,
		enabled: cfg.Enabled && cfg.APIKey != "",
		cache:   cache.New(cfg.CacheTTL),
		ttl:     cfg.CacheTTL,
	}

	if !g.enabled {
		logging.Info().Msg("Insight generation disabled (no API key configured)")
		return g
	}

	g.client = openai.NewClient(option.WithAPIKey(cfg.APIKey))

	settings := gobreaker.Settings{
		Name:    "openai",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	}
	g.breaker = gobreaker.NewCircuitBreaker[string](settings)

	logging.Info().Str("model", g.model).Msg("Insight generation enabled")
	return g
}

// Enabled reports whether insight generation is configured.
func (g *Generator) Enabled() bool {
	return g.enabled
}

// Generate returns an insights report for the given metrics, from cache
// when possible. The bool result reports whether the cache served it.
func (g *Generator) Generate(ctx context.Context, req Request, m *models.FunnelMetrics) (*models.InsightsReport, bool, error) {
	if !g.enabled {
		return nil, false, ErrNotConfigured
	}

	key := cache.GenerateKey("insights", req)
	if cached, ok := g.cache.Get(key); ok {
		metrics.RecordCacheAccess("insights", true)
		if report, ok := cached.(*models.InsightsReport); ok {
			return report, true, nil
		}
	}
	metrics.RecordCacheAccess("insights", false)

	started := time.Now()
	content, err := g.breaker.Execute(func() (string, error) {
		return g.complete(ctx, buildPrompt(m, req.Audience))
	})
	if err != nil {
		errorType := "api"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			errorType = "breaker"
		}
		metrics.RecordInsightRequest(time.Since(started), errorType)
		logging.Ctx(ctx).Error().Err(err).
			Str("funnel_id", req.FunnelID).
			Msg("Insight generation failed")
		return nil, false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	report, err := parseReport(content)
	if err != nil {
		metrics.RecordInsightRequest(time.Since(started), "parse")
		logging.Ctx(ctx).Error().Err(err).
			Str("funnel_id", req.FunnelID).
			Msg("Insight response was not valid JSON")
		return nil, false, err
	}
	metrics.RecordInsightRequest(time.Since(started), "")

	g.cache.SetWithTTL(key, report, g.ttl)
	return report, false, nil
}

// complete performs one chat completion call and returns the raw content.
func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// parseReport decodes the model output, tolerating markdown code fences.
func parseReport(content string) (*models.InsightsReport, error) {
	var report models.InsightsReport
	if err := json.Unmarshal([]byte(stripCodeFences(content)), &report); err != nil {
		return nil, fmt.Errorf("insights: failed to parse model response: %w", err)
	}
	return &report, nil
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

// Package ingest buffers tracked events in memory and flushes them to
// the event store in batches, either when a project's buffer fills or on
// a periodic timer driven by the supervised Flusher.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/funnelgraph/internal/logging"
	"github.com/tomtom215/funnelgraph/internal/metrics"
	"github.com/tomtom215/funnelgraph/internal/models"
)

// Writer persists a batch of events. Implemented by database.DB.
type Writer interface {
	AppendEvents(ctx context.Context, events []models.Event) error
}

// Tracker accumulates events per project and writes them out in batches.
// All methods are safe for concurrent use.
type Tracker struct {
	writer     Writer
	bufferSize int

	mu      sync.Mutex
	buffers map[string][]models.Event
	pending int

	// onFlush, when set, is invoked after a successful flush. The API
	// layer uses it to invalidate cached analytics responses.
	onFlush func()
}

// NewTracker creates a tracker that force-flushes a project's buffer once
// it reaches bufferSize events.
func NewTracker(writer Writer, bufferSize int) *Tracker {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Tracker{
		writer:     writer,
		bufferSize: bufferSize,
		buffers:    make(map[string][]models.Event),
	}
}

// OnFlush registers a callback invoked after each successful flush.
func (t *Tracker) OnFlush(fn func()) {
	t.mu.Lock()
	t.onFlush = fn
	t.mu.Unlock()
}

// Add buffers one event, assigning it an ID and a server-side timestamp
// when absent. The buffer is flushed inline when it reaches capacity.
func (t *Tracker) Add(ctx context.Context, event models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	t.mu.Lock()
	t.buffers[event.ProjectID] = append(t.buffers[event.ProjectID], event)
	t.pending++
	metrics.IngestEventsBuffered.Inc()
	metrics.IngestBufferDepth.Set(float64(t.pending))
	full := len(t.buffers[event.ProjectID]) >= t.bufferSize
	t.mu.Unlock()

	if full {
		return t.FlushProject(ctx, event.ProjectID)
	}
	return nil
}

// AddBatch buffers a batch of events for one project and flushes that
// project immediately so batch callers see their data on the next query.
func (t *Tracker) AddBatch(ctx context.Context, projectID string, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	now := time.Now().UTC()
	t.mu.Lock()
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.OccurredAt.IsZero() {
			e.OccurredAt = now
		}
		e.ProjectID = projectID
		t.buffers[projectID] = append(t.buffers[projectID], e)
		t.pending++
	}
	metrics.IngestEventsBuffered.Add(float64(len(events)))
	metrics.IngestBufferDepth.Set(float64(t.pending))
	t.mu.Unlock()

	return t.FlushProject(ctx, projectID)
}

// FlushProject writes out the buffered events of one project. Failed
// batches are restored to the buffer for the next attempt.
func (t *Tracker) FlushProject(ctx context.Context, projectID string) error {
	t.mu.Lock()
	batch := t.buffers[projectID]
	if len(batch) == 0 {
		t.mu.Unlock()
		return nil
	}
	delete(t.buffers, projectID)
	t.pending -= len(batch)
	metrics.IngestBufferDepth.Set(float64(t.pending))
	t.mu.Unlock()

	return t.write(ctx, projectID, batch)
}

// FlushAll writes out every project's buffer. The first error is
// returned after all projects have been attempted.
func (t *Tracker) FlushAll(ctx context.Context) error {
	t.mu.Lock()
	projects := make([]string, 0, len(t.buffers))
	for projectID := range t.buffers {
		projects = append(projects, projectID)
	}
	t.mu.Unlock()

	var firstErr error
	for _, projectID := range projects {
		if err := t.FlushProject(ctx, projectID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Pending returns the number of buffered events across all projects.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

func (t *Tracker) write(ctx context.Context, projectID string, batch []models.Event) error {
	started := time.Now()
	err := t.writer.AppendEvents(ctx, batch)
	metrics.RecordIngestFlush(time.Since(started), len(batch), err)

	if err != nil {
		logging.Ctx(ctx).Error().Err(err).
			Str("project_id", projectID).
			Int("events", len(batch)).
			Msg("Event flush failed, rebuffering batch")

		t.mu.Lock()
		t.buffers[projectID] = append(batch, t.buffers[projectID]...)
		t.pending += len(batch)
		metrics.IngestBufferDepth.Set(float64(t.pending))
		t.mu.Unlock()
		return err
	}

	logging.Ctx(ctx).Debug().
		Str("project_id", projectID).
		Int("events", len(batch)).
		Msg("Event buffer flushed")

	t.mu.Lock()
	onFlush := t.onFlush
	t.mu.Unlock()
	if onFlush != nil {
		onFlush()
	}
	return nil
}

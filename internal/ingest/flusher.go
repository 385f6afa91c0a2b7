// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package ingest

import (
	"context"
	"time"

	"github.com/tomtom215/funnelgraph/internal/logging"
)

// Flusher periodically drains the tracker's buffers. It implements
// suture.Service so the supervision tree restarts it if it ever fails.
type Flusher struct {
	tracker  *Tracker
	interval time.Duration
}

// NewFlusher creates a flusher that drains the tracker every interval.
func NewFlusher(tracker *Tracker, interval time.Duration) *Flusher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Flusher{
		tracker:  tracker,
		interval: interval,
	}
}

// Serve implements suture.Service. It flushes on a ticker until the
// context is canceled, then performs a final drain so buffered events
// survive shutdown.
func (f *Flusher) Serve(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", f.interval).Msg("Ingest flusher started")

	for {
		select {
		case <-ticker.C:
			if err := f.tracker.FlushAll(ctx); err != nil {
				// Failed batches stay buffered; the next tick retries.
				logging.Warn().Err(err).Msg("Periodic event flush failed")
			}
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := f.tracker.FlushAll(drainCtx); err != nil {
				logging.Error().Err(err).
					Int("pending", f.tracker.Pending()).
					Msg("Final event drain failed, buffered events lost")
			}
			return ctx.Err()
		}
	}
}

// String names the service in suture's logs.
func (f *Flusher) String() string {
	return "ingest-flusher"
}

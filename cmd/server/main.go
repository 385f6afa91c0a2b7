// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

// Package main is the entry point for the Funnelgraph server.
//
// Funnelgraph is a self-hosted conversion funnel analytics service. It
// ingests product events into date-partitioned parquet files, computes
// multi-stage funnel metrics with segment filtering and breakdown over
// DuckDB, and optionally generates model-written insight reports.
//
// The server initializes components in the following order:
//
//  1. Configuration: Koanf v2 layered defaults -> config file -> env
//  2. Logging: zerolog global logger
//  3. Event store: in-memory DuckDB over parquet partitions
//  4. Registry: project and funnel definitions in flat JSON files
//  5. Ingest: buffered event tracker with a supervised periodic flusher
//  6. Insights: OpenAI-backed report generation (optional)
//  7. HTTP server: chi REST API, supervised
//
// Shutdown is graceful on SIGINT/SIGTERM: the flusher drains its
// buffers and the HTTP server finishes in-flight requests.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tomtom215/funnelgraph/internal/api"
	"github.com/tomtom215/funnelgraph/internal/config"
	"github.com/tomtom215/funnelgraph/internal/database"
	"github.com/tomtom215/funnelgraph/internal/funnel"
	"github.com/tomtom215/funnelgraph/internal/ingest"
	"github.com/tomtom215/funnelgraph/internal/insights"
	"github.com/tomtom215/funnelgraph/internal/logging"
	"github.com/tomtom215/funnelgraph/internal/metrics"
	"github.com/tomtom215/funnelgraph/internal/registry"
	"github.com/tomtom215/funnelgraph/internal/supervisor"
	"github.com/tomtom215/funnelgraph/internal/supervisor/services"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("version", version).
		Str("environment", cfg.Server.Environment).
		Msg("Starting Funnelgraph")

	metrics.AppInfo.WithLabelValues(version, runtime.Version()).Set(1)

	db, err := database.New(&cfg.Database, cfg.Storage.DataDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize event store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close event store")
		}
	}()

	reg, err := registry.NewStore(cfg.Storage.DataDir)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize registry")
	}
	bootstrapProject(reg)

	tracker := ingest.NewTracker(db, cfg.Ingest.BufferSize)
	flusher := ingest.NewFlusher(tracker, cfg.Ingest.FlushInterval)

	svc := funnel.NewService(reg, db)
	gen := insights.NewGenerator(&cfg.Insights)

	handler := api.NewHandler(db, reg, svc, tracker, gen, cfg)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler).Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddIngestService(flusher)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the error channel until the tree has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}

	logging.Info().Msg("Funnelgraph stopped gracefully")
}

// bootstrapProject creates a default project on first boot so tracking
// snippets work before any setup call. The full API key is logged once,
// truncated, for local development.
func bootstrapProject(reg *registry.Store) {
	if _, err := reg.FirstProject(); err == nil {
		return
	}

	project, err := reg.CreateProject(api.DefaultOrgID, "Default Project", "")
	if err != nil {
		logging.Warn().Err(err).Msg("Could not create default project")
		return
	}
	logging.Info().
		Str("project_id", project.ID).
		Str("api_key_prefix", project.MaskedAPIKey()).
		Msg("Created default project")
}

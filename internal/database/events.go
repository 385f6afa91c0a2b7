// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/funnelgraph/internal/logging"
	"github.com/tomtom215/funnelgraph/internal/metrics"
	"github.com/tomtom215/funnelgraph/internal/models"
)

// eventColumns is the canonical column order for event partitions. The
// staging table, SELECT lists and INSERT statements all follow it.
const eventColumns = "event_id, project_id, event_type, user_id, session_id, properties, " +
	"url, referrer, user_agent, ip_address, occurred_at, " +
	"user_intent, content_category, surface, user_tenure, experiment_id, variant"

const stagingSchema = `(
	event_id VARCHAR,
	project_id VARCHAR,
	event_type VARCHAR,
	user_id VARCHAR,
	session_id VARCHAR,
	properties VARCHAR,
	url VARCHAR,
	referrer VARCHAR,
	user_agent VARCHAR,
	ip_address VARCHAR,
	occurred_at TIMESTAMP,
	user_intent VARCHAR,
	content_category VARCHAR,
	surface VARCHAR,
	user_tenure VARCHAR,
	experiment_id VARCHAR,
	variant VARCHAR
)`

// FetchEvents returns all events for a project within the inclusive day
// range [start, end], optionally restricted to the given event types.
//
// Partitions absent on disk contribute no events. A partition that exists
// but cannot be read degrades the whole fetch to an empty result with a
// warning; analytics callers render zero counts rather than an error.
func (db *DB) FetchEvents(ctx context.Context, projectID string, start, end time.Time, eventTypes []string) ([]models.Event, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	paths, missing := db.existingPartitions(projectID, start, end)
	if missing > 0 {
		metrics.DBPartitionsMissing.Add(float64(missing))
	}
	metrics.DBPartitionsScanned.Observe(float64(len(paths)))

	if len(paths) == 0 {
		logging.Ctx(ctx).Debug().
			Str("project_id", projectID).
			Str("start", start.Format("2006-01-02")).
			Str("end", end.Format("2006-01-02")).
			Msg("No event partitions for range")
		return []models.Event{}, nil
	}

	query := fmt.Sprintf(`
		SELECT
			event_id, project_id, event_type, user_id,
			COALESCE(session_id, ''),
			COALESCE(properties, '{}'),
			COALESCE(url, ''),
			COALESCE(referrer, ''),
			COALESCE(user_agent, ''),
			COALESCE(ip_address, ''),
			occurred_at,
			COALESCE(user_intent, 'Unknown'),
			COALESCE(content_category, ''),
			COALESCE(surface, 'Unknown'),
			COALESCE(user_tenure, 'Unknown'),
			COALESCE(experiment_id, ''),
			COALESCE(variant, '')
		FROM read_parquet(%s, union_by_name = true)
		WHERE occurred_at >= ? AND occurred_at < ?`, parquetFileList(paths))

	endExclusive := end.Truncate(24 * time.Hour).AddDate(0, 0, 1)
	args := []interface{}{start.Truncate(24 * time.Hour), endExclusive}

	if len(eventTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(eventTypes)), ", ")
		query += fmt.Sprintf(" AND event_type IN (%s)", placeholders)
		for _, et := range eventTypes {
			args = append(args, et)
		}
	}

	started := time.Now()
	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("fetch_events", time.Since(started), err)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).
			Str("project_id", projectID).
			Int("partitions", len(paths)).
			Msg("Event partition scan failed, returning empty result")
		return []models.Event{}, nil
	}
	defer closeQuietly(rows)

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var props string
		if err := rows.Scan(
			&e.ID, &e.ProjectID, &e.EventType, &e.UserID,
			&e.SessionID, &props, &e.URL, &e.Referrer,
			&e.UserAgent, &e.IPAddress, &e.OccurredAt,
			&e.UserIntent, &e.ContentCategory, &e.Surface,
			&e.UserTenure, &e.ExperimentID, &e.Variant,
		); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Event row scan failed, returning empty result")
			return []models.Event{}, nil
		}
		if props != "" && props != "{}" {
			if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
				// Malformed properties do not invalidate the event
				e.Properties = nil
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Event row iteration failed, returning empty result")
		return []models.Event{}, nil
	}

	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

// AppendEvents writes events into their daily parquet partitions. Each
// affected partition is rewritten as existing rows plus the new batch,
// staged through a temp table and swapped in with an atomic rename.
func (db *DB) AppendEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	started := time.Now()
	err := db.appendEventsLocked(ctx, events)
	metrics.RecordDBQuery("append_events", time.Since(started), err)
	return err
}

func (db *DB) appendEventsLocked(ctx context.Context, events []models.Event) error {
	groups := make(map[string][]models.Event)
	days := make(map[string]time.Time)
	for _, e := range events {
		day := e.OccurredAt.UTC().Truncate(24 * time.Hour)
		key := e.ProjectID + "|" + day.Format("2006-01-02")
		groups[key] = append(groups[key], e)
		days[key] = day
	}

	for key, group := range groups {
		if err := db.writePartition(ctx, group[0].ProjectID, days[key], group); err != nil {
			return fmt.Errorf("failed to write partition for %s: %w", key, err)
		}
	}

	return nil
}

// writePartition merges a batch of same-day events with the existing
// partition file (if any) and atomically replaces it.
func (db *DB) writePartition(ctx context.Context, projectID string, day time.Time, events []models.Event) error {
	target := db.partitionPath(projectID, day)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("failed to create partition directory: %w", err)
	}

	// Temp tables are connection-scoped; pin one connection for the
	// whole staging sequence.
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer closeQuietly(conn)

	if _, err := conn.ExecContext(ctx, "CREATE TEMP TABLE staging_events "+stagingSchema); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(ctx, "DROP TABLE IF EXISTS staging_events")
	}()

	if _, statErr := os.Stat(target); statErr == nil {
		merge := fmt.Sprintf("INSERT INTO staging_events (%s) SELECT %s FROM read_parquet(%s, union_by_name = true)",
			eventColumns, eventColumns, quoteSQLPath(target))
		if _, err := conn.ExecContext(ctx, merge); err != nil {
			return fmt.Errorf("failed to merge existing partition: %w", err)
		}
	}

	insert := fmt.Sprintf("INSERT INTO staging_events (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", eventColumns)
	stmt, err := conn.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("failed to prepare staging insert: %w", err)
	}
	defer closeQuietly(stmt)

	for _, e := range events {
		props := "{}"
		if len(e.Properties) > 0 {
			data, err := json.Marshal(e.Properties)
			if err != nil {
				return fmt.Errorf("failed to marshal event properties: %w", err)
			}
			props = string(data)
		}

		if _, err := stmt.ExecContext(ctx,
			e.ID, e.ProjectID, e.EventType, e.UserID, e.SessionID,
			props, e.URL, e.Referrer, e.UserAgent, e.IPAddress,
			e.OccurredAt.UTC(),
			e.UserIntent, e.ContentCategory, e.Surface, e.UserTenure,
			e.ExperimentID, e.Variant,
		); err != nil {
			return fmt.Errorf("failed to stage event %s: %w", e.ID, err)
		}
	}

	tmp := target + ".tmp"
	copyStmt := fmt.Sprintf("COPY (SELECT %s FROM staging_events ORDER BY occurred_at) TO %s (FORMAT PARQUET, COMPRESSION SNAPPY)",
		eventColumns, quoteSQLPath(tmp))
	if _, err := conn.ExecContext(ctx, copyStmt); err != nil {
		return fmt.Errorf("failed to write parquet file: %w", err)
	}

	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace partition file: %w", err)
	}

	logging.Ctx(ctx).Debug().
		Str("project_id", projectID).
		Str("partition", day.Format("2006-01-02")).
		Int("events", len(events)).
		Msg("Partition written")

	return nil
}

// EventTypes returns the distinct event types seen for a project across
// all partitions, sorted alphabetically. Unreadable partitions degrade
// to an empty list.
func (db *DB) EventTypes(ctx context.Context, projectID string) ([]string, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	paths, err := db.allPartitions(projectID)
	if err != nil || len(paths) == 0 {
		return []string{}, nil
	}

	query := fmt.Sprintf("SELECT DISTINCT event_type FROM read_parquet(%s, union_by_name = true)", parquetFileList(paths))

	started := time.Now()
	rows, qerr := db.conn.QueryContext(ctx, query)
	metrics.RecordDBQuery("event_types", time.Since(started), qerr)
	if qerr != nil {
		logging.Ctx(ctx).Warn().Err(qerr).
			Str("project_id", projectID).
			Msg("Event type scan failed, returning empty result")
		return []string{}, nil
	}
	defer closeQuietly(rows)

	var types []string
	for rows.Next() {
		var t sql.NullString
		if err := rows.Scan(&t); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Event type scan failed, returning empty result")
			return []string{}, nil
		}
		if t.Valid && t.String != "" {
			types = append(types, t.String)
		}
	}
	if err := rows.Err(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Event type iteration failed, returning empty result")
		return []string{}, nil
	}

	sort.Strings(types)
	if types == nil {
		types = []string{}
	}
	return types, nil
}

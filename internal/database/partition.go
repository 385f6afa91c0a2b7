// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Partition layout:
//
//	<dataDir>/events/project_<id>/<year>/<month>/events_<YYYY-MM-DD>.parquet
//
// One file per project per day. Partitions for days with no events are
// simply absent.

// eventsRoot returns the root directory holding all event partitions.
func eventsRoot(dataDir string) string {
	return filepath.Join(dataDir, "events")
}

// partitionPath returns the parquet file path for one project-day.
func (db *DB) partitionPath(projectID string, day time.Time) string {
	return filepath.Join(
		eventsRoot(db.dataDir),
		"project_"+sanitizePathComponent(projectID),
		fmt.Sprintf("%04d", day.Year()),
		fmt.Sprintf("%02d", int(day.Month())),
		"events_"+day.Format("2006-01-02")+".parquet",
	)
}

// existingPartitions returns the partition files present on disk for the
// inclusive day range [start, end], plus the number of requested days
// whose partition was absent.
func (db *DB) existingPartitions(projectID string, start, end time.Time) ([]string, int) {
	var paths []string
	missing := 0

	day := start.Truncate(24 * time.Hour)
	last := end.Truncate(24 * time.Hour)
	for !day.After(last) {
		path := db.partitionPath(projectID, day)
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
		} else {
			missing++
		}
		day = day.AddDate(0, 0, 1)
	}

	return paths, missing
}

// allPartitions returns every parquet partition for a project, or for all
// projects when projectID is empty.
func (db *DB) allPartitions(projectID string) ([]string, error) {
	root := eventsRoot(db.dataDir)
	if projectID != "" {
		root = filepath.Join(root, "project_"+sanitizePathComponent(projectID))
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// A vanished directory is not an error for discovery
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(path, ".parquet") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return paths, nil
}

// sanitizePathComponent strips characters that could escape the partition
// directory. Project IDs are UUIDs in practice, so this is belt-and-braces
// for externally supplied IDs.
func sanitizePathComponent(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// quoteSQLPath quotes a file path for interpolation into read_parquet().
// File paths cannot be bound as parameters in DuckDB's table functions.
func quoteSQLPath(path string) string {
	return "'" + strings.ReplaceAll(path, "'", "''") + "'"
}

// parquetFileList renders a DuckDB list literal of quoted file paths.
func parquetFileList(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = quoteSQLPath(p)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

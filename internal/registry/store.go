// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

// Package registry persists project and funnel definitions as flat JSON
// files under <dataDir>/metadata. Definitions are small and change
// rarely; the whole set is held in memory and rewritten atomically on
// every mutation.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/funnelgraph/internal/logging"
	"github.com/tomtom215/funnelgraph/internal/models"
)

var (
	// ErrNotFound is returned when a project or funnel does not exist
	// or belongs to a different organization.
	ErrNotFound = errors.New("registry: not found")

	// ErrInvalidStages is returned when a funnel definition violates the
	// stage rules: 1 to 5 stages with contiguous orders starting at 1.
	ErrInvalidStages = errors.New("registry: invalid stage definition")
)

const (
	projectsFile = "projects.json"
	funnelsFile  = "funnels.json"
)

// Store holds project and funnel definitions in memory, backed by JSON
// files. All methods are safe for concurrent use.
type Store struct {
	dir string

	mu       sync.RWMutex
	projects []models.Project
	funnels  []models.Funnel
}

type projectsDocument struct {
	Projects []models.Project `json:"projects"`
}

type funnelsDocument struct {
	Funnels []models.Funnel `json:"funnels"`
}

// NewStore loads (or initializes) the registry under <dataDir>/metadata.
func NewStore(dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "metadata")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	s := &Store{dir: dir}

	var projects projectsDocument
	if err := s.loadFile(projectsFile, &projects); err != nil {
		return nil, err
	}
	s.projects = projects.Projects

	var funnels funnelsDocument
	if err := s.loadFile(funnelsFile, &funnels); err != nil {
		return nil, err
	}
	s.funnels = funnels.Funnels

	logging.Info().
		Int("projects", len(s.projects)).
		Int("funnels", len(s.funnels)).
		Str("dir", dir).
		Msg("Registry loaded")

	return s, nil
}

// loadFile reads a JSON document, treating a missing file as empty.
func (s *Store) loadFile(name string, out interface{}) error {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from config
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return nil
}

// saveFile writes a JSON document atomically via temp file and rename.
// Callers must hold the write lock.
func (s *Store) saveFile(name string, doc interface{}) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func (s *Store) saveProjects() error {
	return s.saveFile(projectsFile, projectsDocument{Projects: s.projects})
}

func (s *Store) saveFunnels() error {
	return s.saveFile(funnelsFile, funnelsDocument{Funnels: s.funnels})
}

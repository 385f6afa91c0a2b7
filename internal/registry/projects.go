// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package registry

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/funnelgraph/internal/models"
)

// apiKeyPrefix marks keys issued by this service; useful when keys show
// up in support tickets or logs.
const apiKeyPrefix = "fg_"

// generateAPIKey returns a URL-safe random key with the service prefix.
func generateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	return apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateProject registers a new project and issues its API key. The full
// key is only returned here; subsequent reads expose the masked form.
func (s *Store) CreateProject(orgID, name, domain string) (*models.Project, error) {
	key, err := generateAPIKey()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	project := models.Project{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		Name:           name,
		APIKey:         key,
		Domain:         domain,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.projects = append(s.projects, project)
	if err := s.saveProjects(); err != nil {
		s.projects = s.projects[:len(s.projects)-1]
		return nil, err
	}

	return &project, nil
}

// ListProjects returns all projects belonging to an organization.
func (s *Store) ListProjects(orgID string) []models.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Project, 0)
	for _, p := range s.projects {
		if p.OrganizationID == orgID {
			out = append(out, p)
		}
	}
	return out
}

// GetProject returns a project by ID, scoped to an organization.
func (s *Store) GetProject(projectID, orgID string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.projects {
		if p.ID == projectID && p.OrganizationID == orgID {
			project := p
			return &project, nil
		}
	}
	return nil, ErrNotFound
}

// GetProjectByAPIKey resolves a project from a tracking API key.
func (s *Store) GetProjectByAPIKey(apiKey string) (*models.Project, error) {
	if apiKey == "" {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.projects {
		if p.APIKey == apiKey {
			project := p
			return &project, nil
		}
	}
	return nil, ErrNotFound
}

// FirstProject returns the oldest project, used as the tracking fallback
// when no API key is supplied. Returns ErrNotFound when no projects exist.
func (s *Store) FirstProject() (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.projects) == 0 {
		return nil, ErrNotFound
	}

	first := s.projects[0]
	for _, p := range s.projects[1:] {
		if p.CreatedAt.Before(first.CreatedAt) {
			first = p
		}
	}
	return &first, nil
}

// UpdateProject replaces a project's name and domain. The API key and
// creation time are preserved.
func (s *Store) UpdateProject(projectID, orgID, name, domain string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.projects {
		if p.ID != projectID || p.OrganizationID != orgID {
			continue
		}
		prev := s.projects[i]
		s.projects[i].Name = name
		s.projects[i].Domain = domain
		s.projects[i].UpdatedAt = time.Now().UTC()
		if err := s.saveProjects(); err != nil {
			s.projects[i] = prev
			return nil, err
		}
		project := s.projects[i]
		return &project, nil
	}
	return nil, ErrNotFound
}

// DeleteProject removes a project and all of its funnel definitions.
// Event partitions on disk are left untouched.
func (s *Store) DeleteProject(projectID, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, p := range s.projects {
		if p.ID == projectID && p.OrganizationID == orgID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrNotFound
	}

	s.projects = append(s.projects[:idx], s.projects[idx+1:]...)
	if err := s.saveProjects(); err != nil {
		return err
	}

	kept := s.funnels[:0]
	removed := false
	for _, f := range s.funnels {
		if f.ProjectID == projectID {
			removed = true
			continue
		}
		kept = append(kept, f)
	}
	s.funnels = kept
	if removed {
		return s.saveFunnels()
	}
	return nil
}

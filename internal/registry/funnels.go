// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/funnelgraph/internal/models"
)

// validateStages enforces the funnel stage rules at definition time:
// between 1 and 5 stages, orders forming the contiguous sequence
// 1..len(stages), and non-empty names and event types.
func validateStages(stages []models.Stage) error {
	if len(stages) == 0 || len(stages) > models.MaxStages {
		return fmt.Errorf("%w: funnel must have between 1 and %d stages, got %d",
			ErrInvalidStages, models.MaxStages, len(stages))
	}

	seen := make(map[int]bool, len(stages))
	for _, st := range stages {
		if strings.TrimSpace(st.Name) == "" {
			return fmt.Errorf("%w: stage name must not be empty", ErrInvalidStages)
		}
		if strings.TrimSpace(st.EventType) == "" {
			return fmt.Errorf("%w: stage event type must not be empty", ErrInvalidStages)
		}
		if st.Order < 1 || st.Order > len(stages) {
			return fmt.Errorf("%w: stage order %d out of range 1..%d",
				ErrInvalidStages, st.Order, len(stages))
		}
		if seen[st.Order] {
			return fmt.Errorf("%w: duplicate stage order %d", ErrInvalidStages, st.Order)
		}
		seen[st.Order] = true
	}

	return nil
}

// sortStages returns a copy of stages ordered by their Order field.
func sortStages(stages []models.Stage) []models.Stage {
	out := make([]models.Stage, len(stages))
	copy(out, stages)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// CreateFunnel validates and stores a funnel definition for a project.
func (s *Store) CreateFunnel(orgID, projectID, name, description string, stages []models.Stage) (*models.Funnel, error) {
	if err := validateStages(stages); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.projectExistsLocked(projectID, orgID) {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	funnel := models.Funnel{
		ID:             uuid.New().String(),
		ProjectID:      projectID,
		OrganizationID: orgID,
		Name:           name,
		Description:    description,
		Stages:         sortStages(stages),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.funnels = append(s.funnels, funnel)
	if err := s.saveFunnels(); err != nil {
		s.funnels = s.funnels[:len(s.funnels)-1]
		return nil, err
	}

	return &funnel, nil
}

// ListFunnels returns all funnels for an organization, optionally
// filtered to one project.
func (s *Store) ListFunnels(orgID, projectID string) []models.Funnel {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Funnel, 0)
	for _, f := range s.funnels {
		if f.OrganizationID != orgID {
			continue
		}
		if projectID != "" && f.ProjectID != projectID {
			continue
		}
		out = append(out, f)
	}
	return out
}

// GetFunnel returns a funnel by ID, scoped to an organization.
func (s *Store) GetFunnel(funnelID, orgID string) (*models.Funnel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.findFunnelLocked(funnelID, orgID)
}

// UpdateFunnel replaces the mutable fields of a funnel definition.
func (s *Store) UpdateFunnel(funnelID, orgID, name, description string, stages []models.Stage, isActive bool) (*models.Funnel, error) {
	if err := validateStages(stages); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.funnels {
		if f.ID != funnelID || f.OrganizationID != orgID {
			continue
		}

		updated := f
		updated.Name = name
		updated.Description = description
		updated.Stages = sortStages(stages)
		updated.IsActive = isActive
		updated.UpdatedAt = time.Now().UTC()

		s.funnels[i] = updated
		if err := s.saveFunnels(); err != nil {
			s.funnels[i] = f
			return nil, err
		}
		return &updated, nil
	}

	return nil, ErrNotFound
}

// DeleteFunnel removes a funnel definition.
func (s *Store) DeleteFunnel(funnelID, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.funnels {
		if f.ID == funnelID && f.OrganizationID == orgID {
			removed := s.funnels[i]
			s.funnels = append(s.funnels[:i], s.funnels[i+1:]...)
			if err := s.saveFunnels(); err != nil {
				s.funnels = append(s.funnels, removed)
				return err
			}
			return nil
		}
	}
	return ErrNotFound
}

// ResolveFunnel satisfies the analytics engine's definition source. The
// context is accepted for interface symmetry; lookups are in-memory.
func (s *Store) ResolveFunnel(_ context.Context, funnelID, orgID string) (*models.Funnel, error) {
	return s.GetFunnel(funnelID, orgID)
}

func (s *Store) findFunnelLocked(funnelID, orgID string) (*models.Funnel, error) {
	for _, f := range s.funnels {
		if f.ID == funnelID && f.OrganizationID == orgID {
			funnel := f
			return &funnel, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Store) projectExistsLocked(projectID, orgID string) bool {
	for _, p := range s.projects {
		if p.ID == projectID && p.OrganizationID == orgID {
			return true
		}
	}
	return false
}

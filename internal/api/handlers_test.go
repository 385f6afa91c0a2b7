// Funnelgraph - Conversion Funnel Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/funnelgraph

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/funnelgraph/internal/config"
	"github.com/tomtom215/funnelgraph/internal/funnel"
	"github.com/tomtom215/funnelgraph/internal/ingest"
	"github.com/tomtom215/funnelgraph/internal/insights"
	"github.com/tomtom215/funnelgraph/internal/models"
	"github.com/tomtom215/funnelgraph/internal/registry"
)

// fakeStore satisfies both the handler's EventStore and the funnel
// service's EventSource, and records appended events for the tracker.
type fakeStore struct {
	mu      sync.Mutex
	events  []models.Event
	types   []string
	pingErr error
}

func (f *fakeStore) FetchEvents(_ context.Context, projectID string, _, _ time.Time, _ []string) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Event, 0, len(f.events))
	for _, e := range f.events {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) AppendEvents(_ context.Context, events []models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeStore) EventTypes(context.Context, string) ([]string, error) {
	return f.types, nil
}

func (f *fakeStore) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeStore) stored() []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Event(nil), f.events...)
}

type testEnv struct {
	store    *fakeStore
	registry *registry.Store
	tracker  *ingest.Tracker
	server   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		API: config.APIConfig{
			MaxDateRangeDays: 90,
			MaxBatchEvents:   10,
			CacheTTL:         time.Minute,
		},
		Security: config.SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitDisabled: true,
		},
	}

	store := &fakeStore{}
	reg, err := registry.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	tracker := ingest.NewTracker(store, 100)
	svc := funnel.NewService(reg, store)
	gen := insights.NewGenerator(&config.InsightsConfig{})

	handler := NewHandler(store, reg, svc, tracker, gen, cfg)
	env := &testEnv{
		store:    store,
		registry: reg,
		tracker:  tracker,
		server:   NewRouter(handler).Setup(),
	}
	return env
}

// do performs a request against the routing tree and decodes the
// response envelope.
func (env *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, *models.APIResponse) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	if rec.Code == http.StatusNoContent {
		return rec, nil
	}

	var envelope models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response envelope: %v (body %q)", err, rec.Body.String())
	}
	return rec, &envelope
}

// decodeData re-decodes the envelope's data field into out.
func decodeData(t *testing.T, envelope *models.APIResponse, out interface{}) {
	t.Helper()
	raw, err := json.Marshal(envelope.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func checkoutStages() []models.Stage {
	return []models.Stage{
		{Order: 1, Name: "View", EventType: "page_view"},
		{Order: 2, Name: "Cart", EventType: "add_to_cart"},
		{Order: 3, Name: "Buy", EventType: "purchase"},
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec, envelope := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if envelope.Status != "success" {
		t.Errorf("envelope status = %q", envelope.Status)
	}

	var data map[string]interface{}
	decodeData(t, envelope, &data)
	if data["status"] != "healthy" {
		t.Errorf("health status = %v, want healthy", data["status"])
	}
	if data["insights_enabled"] != false {
		t.Error("insights should be disabled without an API key")
	}
}

func TestHealthReadyDegraded(t *testing.T) {
	env := newTestEnv(t)
	env.store.pingErr = context.DeadlineExceeded

	rec, envelope := env.do(t, http.MethodGet, "/api/v1/health/ready", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != "NOT_READY" {
		t.Errorf("error = %+v, want NOT_READY", envelope.Error)
	}
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec, envelope := env.do(t, http.MethodPost, "/api/v1/projects/", ProjectRequest{Name: "Shop", Domain: "shop.example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (body %+v)", rec.Code, envelope.Error)
	}

	var created models.Project
	decodeData(t, envelope, &created)
	if created.APIKey == "" || created.APIKey[len(created.APIKey)-3:] == "***" {
		t.Errorf("create should expose the full API key, got %q", created.APIKey)
	}

	// List masks keys.
	_, envelope = env.do(t, http.MethodGet, "/api/v1/projects/", nil)
	var listed []models.Project
	decodeData(t, envelope, &listed)
	if len(listed) != 1 {
		t.Fatalf("listed %d projects, want 1", len(listed))
	}
	if listed[0].APIKey == created.APIKey {
		t.Error("list should mask the API key")
	}

	rec, envelope = env.do(t, http.MethodPut, "/api/v1/projects/"+created.ID, ProjectRequest{Name: "Storefront"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200", rec.Code)
	}
	var updated models.Project
	decodeData(t, envelope, &updated)
	if updated.Name != "Storefront" {
		t.Errorf("updated name = %q", updated.Name)
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/v1/projects/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}

	rec, envelope = env.do(t, http.MethodGet, "/api/v1/projects/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != "NOT_FOUND" {
		t.Errorf("error = %+v, want NOT_FOUND", envelope.Error)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)

	rec, envelope := env.do(t, http.MethodPost, "/api/v1/projects/", ProjectRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v, want VALIDATION_ERROR", envelope.Error)
	}
}

func TestFunnelLifecycle(t *testing.T) {
	env := newTestEnv(t)
	project, _ := env.registry.CreateProject(DefaultOrgID, "Shop", "")

	rec, envelope := env.do(t, http.MethodPost, "/api/v1/funnels/", FunnelRequest{
		ProjectID: project.ID,
		Name:      "Checkout",
		Stages:    checkoutStages(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201 (error %+v)", rec.Code, envelope.Error)
	}

	var created models.Funnel
	decodeData(t, envelope, &created)
	if !created.IsActive || len(created.Stages) != 3 {
		t.Errorf("created funnel = %+v", created)
	}

	rec, envelope = env.do(t, http.MethodGet, "/api/v1/funnels/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}

	inactive := false
	rec, envelope = env.do(t, http.MethodPut, "/api/v1/funnels/"+created.ID, FunnelRequest{
		ProjectID: project.ID,
		Name:      "Checkout v2",
		Stages:    checkoutStages(),
		IsActive:  &inactive,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200 (error %+v)", rec.Code, envelope.Error)
	}
	var updated models.Funnel
	decodeData(t, envelope, &updated)
	if updated.Name != "Checkout v2" || updated.IsActive {
		t.Errorf("updated funnel = %+v", updated)
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/v1/funnels/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
}

func TestCreateFunnelInvalidStages(t *testing.T) {
	env := newTestEnv(t)
	project, _ := env.registry.CreateProject(DefaultOrgID, "Shop", "")

	// Stage orders must be contiguous from 1.
	rec, envelope := env.do(t, http.MethodPost, "/api/v1/funnels/", FunnelRequest{
		ProjectID: project.ID,
		Name:      "Broken",
		Stages: []models.Stage{
			{Order: 1, Name: "View", EventType: "page_view"},
			{Order: 3, Name: "Buy", EventType: "purchase"},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v, want VALIDATION_ERROR", envelope.Error)
	}
}

func TestTrackEvent(t *testing.T) {
	env := newTestEnv(t)
	project, _ := env.registry.CreateProject(DefaultOrgID, "Shop", "")

	rec, envelope := env.do(t, http.MethodPost, "/api/v1/track/", TrackEventRequest{
		EventType: "page_view",
		UserID:    "u1",
		Surface:   "Home",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (error %+v)", rec.Code, envelope.Error)
	}

	var data map[string]interface{}
	decodeData(t, envelope, &data)
	if data["project_id"] != project.ID {
		t.Errorf("project_id = %v, want %v", data["project_id"], project.ID)
	}
	if env.tracker.Pending() != 1 {
		t.Errorf("pending = %d, want 1", env.tracker.Pending())
	}
}

func TestTrackEventValidation(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.registry.CreateProject(DefaultOrgID, "Shop", "")

	rec, envelope := env.do(t, http.MethodPost, "/api/v1/track/", TrackEventRequest{EventType: "page_view"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if envelope.Error == nil || envelope.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("error = %+v, want VALIDATION_ERROR", envelope.Error)
	}
}

func TestTrackEventNoProjects(t *testing.T) {
	env := newTestEnv(t)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/track/", TrackEventRequest{
		EventType: "page_view",
		UserID:    "u1",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestTrackBatchFlushesImmediately(t *testing.T) {
	env := newTestEnv(t)
	project, _ := env.registry.CreateProject(DefaultOrgID, "Shop", "")

	rec, envelope := env.do(t, http.MethodPost, "/api/v1/track/batch", TrackBatchRequest{
		Events: []TrackEventRequest{
			{EventType: "page_view", UserID: "u1"},
			{EventType: "add_to_cart", UserID: "u1"},
		},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (error %+v)", rec.Code, envelope.Error)
	}

	stored := env.store.stored()
	if len(stored) != 2 {
		t.Fatalf("stored %d events, want 2", len(stored))
	}
	for _, e := range stored {
		if e.ProjectID != project.ID {
			t.Errorf("event project = %q, want %q", e.ProjectID, project.ID)
		}
	}
}

func TestTrackBatchTooLarge(t *testing.T) {
	env := newTestEnv(t)
	_, _ = env.registry.CreateProject(DefaultOrgID, "Shop", "")

	events := make([]TrackEventRequest, 11)
	for i := range events {
		events[i] = TrackEventRequest{EventType: "page_view", UserID: "u1"}
	}

	rec, _ := env.do(t, http.MethodPost, "/api/v1/track/batch", TrackBatchRequest{Events: events})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEventTypes(t *testing.T) {
	env := newTestEnv(t)
	env.store.types = []string{"add_to_cart", "page_view"}
	project, _ := env.registry.CreateProject(DefaultOrgID, "Shop", "")

	rec, envelope := env.do(t, http.MethodGet, "/api/v1/events/types?project_id="+project.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var data struct {
		EventTypes []string `json:"event_types"`
	}
	decodeData(t, envelope, &data)
	if len(data.EventTypes) != 2 {
		t.Errorf("event types = %v", data.EventTypes)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/events/types", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing project_id status = %d, want 400", rec.Code)
	}

	rec, _ = env.do(t, http.MethodGet, "/api/v1/events/types?project_id=missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown project status = %d, want 404", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response missing X-Request-ID header")
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/caretta-labs/trackserver"
)

// mockStore implements trackserver.Store with per-call overrides, mirroring
// the teacher's mockEntityManager (cmd/server/handlers_test.go):
// GetExperiment, CreateExperiment and SearchExperiments return the matching
// error field if set, else the matching value field (zero unless set); every
// other method except Teardown returns "not implemented".
type mockStore struct {
	getExperiment    trackserver.Experiment
	getExperimentErr error

	createExperiment    trackserver.Experiment
	createExperimentErr error

	searchExperiments    []trackserver.Experiment
	searchExperimentsErr error
}

func (m *mockStore) Teardown(ctx context.Context) {}

func (m *mockStore) ListExperiments(ctx context.Context) ([]trackserver.Experiment, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockStore) SearchExperiments(ctx context.Context, maxResults *int64, filterString string, orderBy []string) ([]trackserver.Experiment, error) {
	if m.searchExperimentsErr != nil {
		return nil, m.searchExperimentsErr
	}
	return m.searchExperiments, nil
}

func (m *mockStore) GetExperiment(ctx context.Context, experimentID string) (trackserver.Experiment, error) {
	if m.getExperimentErr != nil {
		return trackserver.Experiment{}, m.getExperimentErr
	}
	return m.getExperiment, nil
}

func (m *mockStore) CreateExperiment(ctx context.Context, name string, artifactLocation *string, tags []trackserver.ExperimentTag) (trackserver.Experiment, error) {
	if m.createExperimentErr != nil {
		return trackserver.Experiment{}, m.createExperimentErr
	}
	return m.createExperiment, nil
}

func (m *mockStore) DeleteExperiment(ctx context.Context, experimentID string) (trackserver.Experiment, error) {
	return trackserver.Experiment{}, fmt.Errorf("not implemented")
}

func (m *mockStore) RestoreExperiment(ctx context.Context, experimentID string) (trackserver.Experiment, error) {
	return trackserver.Experiment{}, fmt.Errorf("not implemented")
}

func (m *mockStore) UpdateExperiment(ctx context.Context, experimentID string, newName string) (trackserver.Experiment, error) {
	return trackserver.Experiment{}, fmt.Errorf("not implemented")
}

func (m *mockStore) SearchRuns(ctx context.Context, experimentIDs []string) ([]trackserver.Run, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (trackserver.Run, error) {
	return trackserver.Run{}, fmt.Errorf("not implemented")
}

func TestHandleGetExperimentSuccess(t *testing.T) {
	server := &Server{store: &mockStore{
		getExperiment: trackserver.Experiment{ExperimentID: "1", Name: "first", LifecycleStage: trackserver.LifecycleActive},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/2.0/mlflow/experiments/get?experiment_id=1", nil)
	rec := httptest.NewRecorder()
	server.handleGetExperiment(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp getExperimentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Experiment.Name != "first" {
		t.Fatalf("expected experiment name %q, got %q", "first", resp.Experiment.Name)
	}
}

func TestHandleGetExperimentMissingID(t *testing.T) {
	server := &Server{store: &mockStore{}}

	req := httptest.NewRequest(http.MethodGet, "/api/2.0/mlflow/experiments/get", nil)
	rec := httptest.NewRecorder()
	server.handleGetExperiment(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleGetExperimentNotFound(t *testing.T) {
	server := &Server{store: &mockStore{
		getExperimentErr: trackserver.NewNotFound(trackserver.CodeExperimentNotFound, "experiment not found", trackserver.EntityRef{Kind: "experiment", ID: "99"}),
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/2.0/mlflow/experiments/get?experiment_id=99", nil)
	rec := httptest.NewRecorder()
	server.handleGetExperiment(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestHandleGetExperimentWrongMethod(t *testing.T) {
	server := &Server{store: &mockStore{}}

	req := httptest.NewRequest(http.MethodPost, "/api/2.0/mlflow/experiments/get?experiment_id=1", nil)
	rec := httptest.NewRecorder()
	server.handleGetExperiment(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

func TestHandleCreateExperimentSuccess(t *testing.T) {
	server := &Server{store: &mockStore{
		createExperiment: trackserver.Experiment{ExperimentID: "7", Name: "new-experiment"},
	}}

	payload := []byte(`{"name": "new-experiment"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/2.0/mlflow/experiments/create", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	server.handleCreateExperiment(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp createExperimentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ExperimentID != "7" {
		t.Fatalf("expected experiment_id %q, got %q", "7", resp.ExperimentID)
	}
}

func TestHandleCreateExperimentRejectsMissingName(t *testing.T) {
	server := &Server{store: &mockStore{}}

	payload := []byte(`{"artifact_location": "/tmp/a"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/2.0/mlflow/experiments/create", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	server.handleCreateExperiment(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSearchExperimentsSuccess(t *testing.T) {
	server := &Server{store: &mockStore{
		searchExperiments: []trackserver.Experiment{{ExperimentID: "1", Name: "a"}, {ExperimentID: "2", Name: "b"}},
	}}

	payload := []byte(`{"filter_string": "name = 'a'"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/2.0/mlflow/experiments/search", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	server.handleSearchExperiments(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp searchExperimentsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Experiments) != 2 {
		t.Fatalf("expected 2 experiments, got %d", len(resp.Experiments))
	}
	if resp.NextPageToken != nil {
		t.Fatalf("expected next_page_token to be nil, got %v", *resp.NextPageToken)
	}
}

func TestHandleSearchExperimentsEmptyBodyAllowed(t *testing.T) {
	server := &Server{store: &mockStore{searchExperiments: nil}}

	req := httptest.NewRequest(http.MethodPost, "/api/2.0/mlflow/experiments/search", nil)
	rec := httptest.NewRecorder()
	server.handleSearchExperiments(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

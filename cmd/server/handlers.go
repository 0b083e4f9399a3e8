package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/caretta-labs/trackserver"
	"github.com/caretta-labs/trackserver/internal/validate"
)

// Server wires a Store to the fixed /api/2.0/mlflow route set (§6). The
// store is opened once at startup against a single long-lived pool and
// shared across every request — §9's design note treats the source's
// per-request open/close as a wart to be fixed, not preserved; what's kept
// is the Store interface's method shape, including the Teardown call every
// exit path (here, process shutdown) must make.
type Server struct {
	store  trackserver.Store
	logger *zap.Logger
	mux    *http.ServeMux
}

// NewServer builds a Server over an already-open Store.
func NewServer(store trackserver.Store, logger *zap.Logger) *Server {
	return &Server{store: store, logger: logger, mux: http.NewServeMux()}
}

const apiPrefix = "/api/2.0/mlflow"

// RegisterRoutes wires every endpoint in §6's table plus the supplemented
// CRUD routes from SPEC_FULL.md §4.
func (s *Server) RegisterRoutes() {
	s.mux.HandleFunc(apiPrefix+"/experiments/search", s.handleSearchExperiments)
	s.mux.HandleFunc(apiPrefix+"/experiments/list", s.handleListExperiments)
	s.mux.HandleFunc(apiPrefix+"/experiments/get", s.handleGetExperiment)
	s.mux.HandleFunc(apiPrefix+"/experiments/create", s.handleCreateExperiment)
	s.mux.HandleFunc(apiPrefix+"/experiments/delete", s.handleDeleteExperiment)
	s.mux.HandleFunc(apiPrefix+"/experiments/restore", s.handleRestoreExperiment)
	s.mux.HandleFunc(apiPrefix+"/experiments/update", s.handleUpdateExperiment)
	s.mux.HandleFunc(apiPrefix+"/runs/search", s.handleSearchRuns)
	s.mux.HandleFunc(apiPrefix+"/runs/get", s.handleGetRun)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// searchExperimentsRequest mirrors POST /experiments/search's body (§6).
type searchExperimentsRequest struct {
	MaxResults   *int64   `json:"max_results,omitempty"`
	FilterString string   `json:"filter_string,omitempty"`
	OrderBy      []string `json:"order_by,omitempty"`
}

type searchExperimentsResponse struct {
	Experiments   []trackserver.Experiment `json:"experiments"`
	NextPageToken *string                  `json:"next_page_token"`
}

func (s *Server) handleSearchExperiments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Message: "method not allowed"})
		return
	}

	var req searchExperimentsRequest
	if r.ContentLength != 0 {
		if err := readJSONBody(r, &req); err != nil {
			writeError(w, trackserver.NewInvalidParameter(trackserver.CodeInvalidBody, "malformed request body: "+err.Error()))
			return
		}
	}

	experiments, err := s.store.SearchExperiments(r.Context(), req.MaxResults, req.FilterString, req.OrderBy)
	if err != nil {
		s.logErr("search_experiments", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchExperimentsResponse{Experiments: experiments, NextPageToken: nil})
}

type listExperimentsResponse struct {
	Experiments   []trackserver.Experiment `json:"experiments"`
	NextPageToken *string                  `json:"next_page_token"`
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Message: "method not allowed"})
		return
	}

	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		s.logErr("list_experiments", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, listExperimentsResponse{Experiments: experiments, NextPageToken: nil})
}

type getExperimentResponse struct {
	Experiment trackserver.Experiment `json:"experiment"`
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Message: "method not allowed"})
		return
	}

	id := r.URL.Query().Get("experiment_id")
	if id == "" {
		writeError(w, trackserver.NewInvalidParameter(trackserver.CodeInvalidBody, "experiment_id is required"))
		return
	}

	exp, err := s.store.GetExperiment(r.Context(), id)
	if err != nil {
		s.logErr("get_experiment", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, getExperimentResponse{Experiment: exp})
}

type createExperimentRequest struct {
	Name             string                      `json:"name"`
	ArtifactLocation *string                     `json:"artifact_location,omitempty"`
	Tags             []trackserver.ExperimentTag `json:"tags,omitempty"`
}

type createExperimentResponse struct {
	ExperimentID string `json:"experiment_id"`
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Message: "method not allowed"})
		return
	}

	var req createExperimentRequest
	if err := decodeAndValidateBody(r, &req, validate.CreateExperimentBody); err != nil {
		writeError(w, err)
		return
	}

	exp, err := s.store.CreateExperiment(r.Context(), req.Name, req.ArtifactLocation, req.Tags)
	if err != nil {
		s.logErr("create_experiment", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createExperimentResponse{ExperimentID: exp.ExperimentID})
}

type experimentIDRequest struct {
	ExperimentID string `json:"experiment_id"`
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	s.handleLifecycleToggle(w, r, "delete_experiment", s.store.DeleteExperiment)
}

func (s *Server) handleRestoreExperiment(w http.ResponseWriter, r *http.Request) {
	s.handleLifecycleToggle(w, r, "restore_experiment", s.store.RestoreExperiment)
}

func (s *Server) handleLifecycleToggle(w http.ResponseWriter, r *http.Request, op string, toggle func(ctx context.Context, experimentID string) (trackserver.Experiment, error)) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Message: "method not allowed"})
		return
	}

	var req experimentIDRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, trackserver.NewInvalidParameter(trackserver.CodeInvalidBody, "malformed request body: "+err.Error()))
		return
	}
	if req.ExperimentID == "" {
		writeError(w, trackserver.NewInvalidParameter(trackserver.CodeInvalidBody, "experiment_id is required"))
		return
	}

	exp, err := toggle(r.Context(), req.ExperimentID)
	if err != nil {
		s.logErr(op, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, getExperimentResponse{Experiment: exp})
}

type updateExperimentRequest struct {
	ExperimentID string `json:"experiment_id"`
	NewName      string `json:"new_name"`
}

func (s *Server) handleUpdateExperiment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Message: "method not allowed"})
		return
	}

	var req updateExperimentRequest
	if err := decodeAndValidateBody(r, &req, validate.UpdateExperimentBody); err != nil {
		writeError(w, err)
		return
	}

	exp, err := s.store.UpdateExperiment(r.Context(), req.ExperimentID, req.NewName)
	if err != nil {
		s.logErr("update_experiment", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, getExperimentResponse{Experiment: exp})
}

type searchRunsRequest struct {
	ExperimentIDs []string `json:"experiment_ids"`
}

type searchRunsResponse struct {
	Runs          []trackserver.Run `json:"runs"`
	NextPageToken *string           `json:"next_page_token"`
}

func (s *Server) handleSearchRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Message: "method not allowed"})
		return
	}

	var req searchRunsRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, trackserver.NewInvalidParameter(trackserver.CodeInvalidBody, "malformed request body: "+err.Error()))
		return
	}

	runs, err := s.store.SearchRuns(r.Context(), req.ExperimentIDs)
	if err != nil {
		s.logErr("search_runs", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchRunsResponse{Runs: runs, NextPageToken: nil})
}

type getRunResponse struct {
	Run trackserver.Run `json:"run"`
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Message: "method not allowed"})
		return
	}

	id := r.URL.Query().Get("run_id")
	if id == "" {
		writeError(w, trackserver.NewInvalidParameter(trackserver.CodeInvalidBody, "run_id is required"))
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.logErr("get_run", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, getRunResponse{Run: run})
}

func (s *Server) logErr(op string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Error("request failed", zap.String("op", op), zap.Error(err))
}

// decodeAndValidateBody reads the body once, JSON-schema validates it via
// validator, then unmarshals the same bytes into dest — mirroring the
// teacher's transformer.go, which resolves and validates a schema against
// decoded JSON before the typed conversion happens.
func decodeAndValidateBody(r *http.Request, dest any, validator func(any) error) error {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return trackserver.NewInvalidParameter(trackserver.CodeInvalidBody, "failed to read request body: "+err.Error())
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return trackserver.NewInvalidParameter(trackserver.CodeInvalidBody, "malformed request body: "+err.Error())
	}
	if err := validator(raw); err != nil {
		return err
	}
	return json.Unmarshal(body, dest)
}

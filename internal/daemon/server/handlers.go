// internal/daemon/server/handlers.go
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/squareslab/bugzood/internal/daemon/store"
	"github.com/squareslab/bugzood/internal/daemon/types"
)

// CreateRunRequest is the body of POST /v1/runs.
type CreateRunRequest struct {
	// Scenario names the scenario to execute.
	Scenario string `json:"scenario"`

	// Retain keeps the workspace after the run regardless of outcome.
	Retain bool `json:"retain,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// routes wires up the HTTP API.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/scenarios", s.handleCreateScenario)
	mux.HandleFunc("GET /v1/scenarios", s.handleListScenarios)
	mux.HandleFunc("GET /v1/scenarios/{name}", s.handleGetScenario)
	mux.HandleFunc("DELETE /v1/scenarios/{name}", s.handleDeleteScenario)

	mux.HandleFunc("POST /v1/runs", s.handleCreateRun)
	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("GET /v1/runs/{name}", s.handleGetRun)
	mux.HandleFunc("DELETE /v1/runs/{name}", s.handleDeleteRun)

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var scenario types.Scenario
	if err := json.NewDecoder(r.Body).Decode(&scenario); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid scenario: %w", err))
		return
	}

	if err := validateScenario(&scenario); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.CreateScenario(r.Context(), &scenario); err != nil {
		if store.IsAlreadyExists(err) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("scenario registered",
		"scenario", scenario.Metadata.Name,
		"program", scenario.Spec.Program)

	writeJSON(w, http.StatusCreated, &scenario)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := s.store.ListScenarios(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sort.Slice(scenarios, func(i, j int) bool {
		return scenarios[i].Metadata.Name < scenarios[j].Metadata.Name
	})
	writeJSON(w, http.StatusOK, scenarios)
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	scenario, err := s.store.GetScenario(r.Context(), r.PathValue("name"))
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, scenario)
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	if runID, busy := s.registry.Active(name); busy {
		writeError(w, http.StatusConflict,
			fmt.Errorf("scenario %q has run %s in flight", name, runID))
		return
	}

	if err := s.store.DeleteScenario(r.Context(), name); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("scenario removed", "scenario", name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.Scenario == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("scenario is required"))
		return
	}

	if _, err := s.store.GetScenario(r.Context(), req.Scenario); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	runID := "run-" + uuid.New().String()[:8]

	// Claim the scenario slot now so the caller gets the conflict
	// immediately instead of a run that fails later. The controller
	// re-claims the same slot idempotently when it picks the run up.
	if err := s.registry.Begin(req.Scenario, runID); err != nil {
		writeError(w, http.StatusConflict,
			fmt.Errorf("scenario %q already has a run in flight", req.Scenario))
		return
	}

	run := &types.Run{
		Metadata: types.ResourceMeta{Name: runID},
		Spec: types.RunSpec{
			ScenarioRef: req.Scenario,
			Retain:      req.Retain,
		},
		Status: types.RunStatus{Phase: types.RunPhasePending},
	}

	if err := s.store.CreateRun(r.Context(), run); err != nil {
		s.registry.End(req.Scenario, runID)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("run submitted",
		"run", runID,
		"scenario", req.Scenario)

	writeJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if scenario := r.URL.Query().Get("scenario"); scenario != "" {
		filtered := runs[:0]
		for _, run := range runs {
			if run.Spec.ScenarioRef == scenario {
				filtered = append(filtered, run)
			}
		}
		runs = filtered
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Metadata.CreatedAt.After(runs[j].Metadata.CreatedAt)
	})
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), r.PathValue("name"))
	if err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	// An executing run is cancelled, not deleted; its record survives
	// with the Failed verdict.
	if s.runCtrl.Cancel(name) {
		s.logger.Info("run cancellation requested", "run", name)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
		return
	}

	if err := s.store.DeleteRun(r.Context(), name); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	// A run deleted before it started executing still holds the
	// scenario slot claimed at submission; free it or the scenario
	// rejects every later submission.
	s.registry.EndRun(name)

	s.logger.Info("run deleted", "run", name)
	w.WriteHeader(http.StatusNoContent)
}

// validateScenario rejects structurally broken scenario submissions.
func validateScenario(scenario *types.Scenario) error {
	var errs []string

	name := scenario.Metadata.Name
	if name == "" {
		errs = append(errs, "metadata.name is required")
	} else if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		errs = append(errs, fmt.Sprintf("metadata.name %q must not contain path elements", name))
	}

	if scenario.Spec.Source.Archive == "" {
		errs = append(errs, "spec.source.archive is required")
	}
	if len(scenario.Spec.BuildSteps) == 0 {
		errs = append(errs, "spec.buildSteps must not be empty")
	}
	for i, step := range scenario.Spec.BuildSteps {
		if step.Command == "" {
			errs = append(errs, fmt.Sprintf("spec.buildSteps[%d].command is required", i))
		}
	}
	if scenario.Spec.Validation.Command == "" {
		errs = append(errs, "spec.validation.command is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid scenario: %s", strings.Join(errs, "; "))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode errors after WriteHeader can only be connection drops.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

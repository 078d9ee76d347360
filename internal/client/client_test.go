package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/squareslab/bugzood/internal/daemon/types"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := NewWithAddress(ts.Listener.Addr().String())
	if err != nil {
		t.Fatalf("NewWithAddress failed: %v", err)
	}
	return c
}

func TestNewWithAddressRefusesDeadDaemon(t *testing.T) {
	// Port 1 is never listening.
	if _, err := NewWithAddress("127.0.0.1:1"); err == nil {
		t.Fatal("expected connection failure")
	}
}

func TestCreateRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/runs", func(w http.ResponseWriter, r *http.Request) {
		var req CreateRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Scenario != "scn-1" || !req.Retain {
			t.Errorf("unexpected request: %+v", req)
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(&types.Run{
			Metadata: types.ResourceMeta{Name: "run-abc"},
			Spec:     types.RunSpec{ScenarioRef: req.Scenario, Retain: req.Retain},
			Status:   types.RunStatus{Phase: types.RunPhasePending},
		})
	})

	c := newTestClient(t, mux)
	run, err := c.CreateRun(context.Background(), "scn-1", true)
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.Metadata.Name != "run-abc" {
		t.Errorf("unexpected run: %+v", run)
	}
}

func TestErrorMapping(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/runs/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "run missing not found"})
	})
	mux.HandleFunc("POST /v1/runs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "scenario busy"})
	})

	c := newTestClient(t, mux)

	_, err := c.GetRun(context.Background(), "missing")
	if !IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "not found") {
		t.Errorf("daemon message lost: %v", err)
	}

	_, err = c.CreateRun(context.Background(), "scn-1", false)
	if !IsConflict(err) {
		t.Errorf("expected conflict error, got %v", err)
	}
}

func TestWaitForRun(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/runs/run-1", func(w http.ResponseWriter, r *http.Request) {
		run := &types.Run{
			Metadata: types.ResourceMeta{Name: "run-1"},
			Status:   types.RunStatus{Phase: types.RunPhaseBuilding},
		}
		if calls.Add(1) >= 2 {
			run.Status.Phase = types.RunPhaseCompleted
		}
		json.NewEncoder(w).Encode(run)
	})

	c := newTestClient(t, mux)

	var phases []string
	run, err := c.WaitForRun(context.Background(), "run-1", func(phase, message string) {
		phases = append(phases, phase)
	})
	if err != nil {
		t.Fatalf("WaitForRun failed: %v", err)
	}
	if run.Status.Phase != types.RunPhaseCompleted {
		t.Errorf("expected Completed, got %s", run.Status.Phase)
	}
	if len(phases) != 2 || phases[0] != types.RunPhaseBuilding || phases[1] != types.RunPhaseCompleted {
		t.Errorf("unexpected phase callbacks: %v", phases)
	}
}

func TestListRunsScenarioFilterPassthrough(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/runs", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("scenario"); got != "scn-1" {
			t.Errorf("scenario filter lost: %q", got)
		}
		json.NewEncoder(w).Encode([]*types.Run{})
	})

	c := newTestClient(t, mux)
	if _, err := c.ListRuns(context.Background(), "scn-1"); err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
}

func TestResolveAddressEnvOverride(t *testing.T) {
	t.Setenv(EnvServer, "example.com:9999")

	addr, err := ResolveAddress()
	if err != nil {
		t.Fatal(err)
	}
	if addr != "example.com:9999" {
		t.Errorf("env override ignored: %s", addr)
	}
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/squareslab/bugzood/internal/daemon/types"
)

// storeFactories lets the same suite cover both backends.
var storeFactories = map[string]func(t *testing.T) Store{
	"bolt": func(t *testing.T) Store {
		s, err := NewBoltStore(filepath.Join(t.TempDir(), "bugzood.db"))
		if err != nil {
			t.Fatalf("failed to open bolt store: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	},
	"memory": func(t *testing.T) Store {
		return NewMemoryStore()
	},
}

func testScenario(name string) *types.Scenario {
	return &types.Scenario{
		Metadata: types.ResourceMeta{Name: name},
		Spec: types.ScenarioSpec{
			Program: "libtiff",
			Source:  types.SourceSpec{Archive: "/archives/libtiff.tar.gz"},
			BuildSteps: []types.BuildStep{
				{Role: types.StepRoleCompile, Command: "make"},
			},
			Validation: types.ValidationSpec{Command: "sh", Args: []string{"test.sh"}},
		},
	}
}

func testRun(name, scenarioRef string) *types.Run {
	return &types.Run{
		Metadata: types.ResourceMeta{Name: name},
		Spec:     types.RunSpec{ScenarioRef: scenarioRef},
		Status:   types.RunStatus{Phase: types.RunPhasePending},
	}
}

func TestScenarioLifecycle(t *testing.T) {
	for backend, factory := range storeFactories {
		t.Run(backend, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			if err := s.CreateScenario(ctx, testScenario("scn-1")); err != nil {
				t.Fatalf("CreateScenario failed: %v", err)
			}

			// Duplicate create is rejected.
			if err := s.CreateScenario(ctx, testScenario("scn-1")); !IsAlreadyExists(err) {
				t.Errorf("expected AlreadyExistsError, got %v", err)
			}

			got, err := s.GetScenario(ctx, "scn-1")
			if err != nil {
				t.Fatalf("GetScenario failed: %v", err)
			}
			if got.Spec.Program != "libtiff" {
				t.Errorf("unexpected program: %s", got.Spec.Program)
			}
			if got.Metadata.Generation != 1 {
				t.Errorf("expected generation 1, got %d", got.Metadata.Generation)
			}

			list, err := s.ListScenarios(ctx)
			if err != nil || len(list) != 1 {
				t.Fatalf("ListScenarios = (%v, %v), want 1 scenario", list, err)
			}

			if err := s.DeleteScenario(ctx, "scn-1"); err != nil {
				t.Fatalf("DeleteScenario failed: %v", err)
			}
			if _, err := s.GetScenario(ctx, "scn-1"); !IsNotFound(err) {
				t.Errorf("expected NotFoundError, got %v", err)
			}
		})
	}
}

func TestRunLifecycle(t *testing.T) {
	for backend, factory := range storeFactories {
		t.Run(backend, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			if err := s.CreateRun(ctx, testRun("run-1", "scn-1")); err != nil {
				t.Fatalf("CreateRun failed: %v", err)
			}

			run, err := s.GetRun(ctx, "run-1")
			if err != nil {
				t.Fatalf("GetRun failed: %v", err)
			}

			run.Status.Phase = types.RunPhaseBuilding
			if err := s.UpdateRun(ctx, run); err != nil {
				t.Fatalf("UpdateRun failed: %v", err)
			}

			updated, err := s.GetRun(ctx, "run-1")
			if err != nil {
				t.Fatal(err)
			}
			if updated.Status.Phase != types.RunPhaseBuilding {
				t.Errorf("expected Building, got %s", updated.Status.Phase)
			}
			if updated.Metadata.Generation != 2 {
				t.Errorf("expected generation 2, got %d", updated.Metadata.Generation)
			}

			if err := s.DeleteRun(ctx, "run-1"); err != nil {
				t.Fatalf("DeleteRun failed: %v", err)
			}
		})
	}
}

func TestRunUpdateConflict(t *testing.T) {
	for backend, factory := range storeFactories {
		t.Run(backend, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			if err := s.CreateRun(ctx, testRun("run-1", "scn-1")); err != nil {
				t.Fatal(err)
			}

			a, _ := s.GetRun(ctx, "run-1")
			b, _ := s.GetRun(ctx, "run-1")

			a.Status.Phase = types.RunPhaseBuilding
			if err := s.UpdateRun(ctx, a); err != nil {
				t.Fatal(err)
			}

			// The stale copy must be rejected.
			b.Status.Phase = types.RunPhaseFailed
			if err := s.UpdateRun(ctx, b); !IsConflict(err) {
				t.Errorf("expected ConflictError, got %v", err)
			}
		})
	}
}

func TestWatchReplaysExistingRuns(t *testing.T) {
	for backend, factory := range storeFactories {
		t.Run(backend, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			if err := s.CreateRun(ctx, testRun("run-1", "scn-1")); err != nil {
				t.Fatal(err)
			}
			if err := s.CreateRun(ctx, testRun("run-2", "scn-2")); err != nil {
				t.Fatal(err)
			}

			events := make(chan string, 16)
			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			go s.Watch(watchCtx, ResourceRuns, func(eventType string, resource interface{}) {
				run := resource.(*Run)
				events <- eventType + ":" + run.Metadata.Name
			})

			seen := map[string]bool{}
			for i := 0; i < 2; i++ {
				select {
				case ev := <-events:
					seen[ev] = true
				case <-time.After(2 * time.Second):
					t.Fatal("timed out waiting for replay events")
				}
			}
			if !seen["ADDED:run-1"] || !seen["ADDED:run-2"] {
				t.Errorf("missing replay events: %v", seen)
			}

			// Live event after replay.
			if err := s.CreateRun(ctx, testRun("run-3", "scn-3")); err != nil {
				t.Fatal(err)
			}
			select {
			case ev := <-events:
				if ev != "ADDED:run-3" {
					t.Errorf("unexpected event %s", ev)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for live event")
			}
		})
	}
}

func TestWatchHandlerSeesCommittedRecord(t *testing.T) {
	for backend, factory := range storeFactories {
		t.Run(backend, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			if err := s.CreateRun(ctx, testRun("run-0", "scn-0")); err != nil {
				t.Fatal(err)
			}

			ready := make(chan struct{}, 1)
			lookups := make(chan error, 1)
			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			// The handler reads back the run it was notified about; the
			// notification must only fire once the write is visible.
			go s.Watch(watchCtx, ResourceRuns, func(eventType string, resource interface{}) {
				run := resource.(*Run)
				switch run.Metadata.Name {
				case "run-0":
					ready <- struct{}{}
				case "run-1":
					_, err := s.GetRun(context.Background(), "run-1")
					lookups <- err
				}
			})

			select {
			case <-ready:
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for watch registration")
			}

			if err := s.CreateRun(ctx, testRun("run-1", "scn-1")); err != nil {
				t.Fatal(err)
			}

			select {
			case err := <-lookups:
				if err != nil {
					t.Errorf("handler could not read the run it was notified about: %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for handler lookup")
			}
		})
	}
}

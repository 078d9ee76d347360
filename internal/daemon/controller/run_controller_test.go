package controller

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/squareslab/bugzood/internal/daemon/builder"
	"github.com/squareslab/bugzood/internal/daemon/command"
	"github.com/squareslab/bugzood/internal/daemon/orchestrator"
	"github.com/squareslab/bugzood/internal/daemon/patcher"
	"github.com/squareslab/bugzood/internal/daemon/source"
	"github.com/squareslab/bugzood/internal/daemon/store"
	"github.com/squareslab/bugzood/internal/daemon/types"
	"github.com/squareslab/bugzood/internal/daemon/validator"
	"github.com/squareslab/bugzood/internal/daemon/workspace"
)

func requireTools(t *testing.T, tools ...string) {
	t.Helper()
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available: %v", tool, err)
		}
	}
}

func makeArchive(t *testing.T) string {
	t.Helper()
	stage := t.TempDir()
	root := filepath.Join(stage, "project")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "greeting.txt"), []byte("hello\n"), 0644); err != nil {
		t.Fatal(err)
	}

	archive := filepath.Join(t.TempDir(), "project.tar.gz")
	cmd := exec.Command("tar", "-czf", archive, "-C", stage, "project")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("tar failed: %v\n%s", err, out)
	}
	return archive
}

func newTestController(t *testing.T) (*RunController, store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	runner := command.NewRunner(command.Config{Logger: logger})
	s := store.NewMemoryStore()

	engine := orchestrator.Config{
		Workspaces: workspace.NewManager(filepath.Join(t.TempDir(), "scenarios"), logger),
		Source:     source.NewFetcher(source.Config{ArchiveDir: filepath.Join(t.TempDir(), "archives"), Runner: runner, Logger: logger}),
		Patcher:    patcher.NewApplicator(patcher.Config{Runner: runner, Logger: logger}),
		Builder:    builder.NewExecutor(builder.Config{Runner: runner, Logger: logger}),
		Validator:  validator.NewRunner(validator.Config{Runner: runner, Logger: logger}),
		Registry:   orchestrator.NewRegistry(),
		Logger:     logger,
	}

	return NewRunController(RunControllerConfig{Store: s, Engine: engine, Logger: logger}), s
}

func seedScenario(t *testing.T, s store.Store, name string, buildScript string) {
	t.Helper()
	scenario := &types.Scenario{
		Metadata: types.ResourceMeta{Name: name},
		Spec: types.ScenarioSpec{
			Program: "demo",
			Source:  types.SourceSpec{Archive: makeArchive(t), StripComponents: 1},
			BuildSteps: []types.BuildStep{
				{Name: "install", Role: types.StepRoleInstall, Command: "sh", Args: []string{"-c", buildScript}},
			},
			Validation: types.ValidationSpec{Command: "run-tests"},
		},
	}
	if err := s.CreateScenario(context.Background(), scenario); err != nil {
		t.Fatal(err)
	}
}

func seedRun(t *testing.T, s store.Store, name, scenarioRef string) {
	t.Helper()
	run := &types.Run{
		Metadata: types.ResourceMeta{Name: name},
		Spec:     types.RunSpec{ScenarioRef: scenarioRef},
		Status:   types.RunStatus{Phase: types.RunPhasePending},
	}
	if err := s.CreateRun(context.Background(), run); err != nil {
		t.Fatal(err)
	}
}

const installRunTests = `printf '#!/bin/sh\nexit 0\n' > "$PREFIX/bin/run-tests" && chmod +x "$PREFIX/bin/run-tests"`

func TestReconcileCompletesRun(t *testing.T) {
	requireTools(t, "sh", "tar")
	c, s := newTestController(t)
	ctx := context.Background()

	seedScenario(t, s, "scn-1", installRunTests)
	seedRun(t, s, "run-1", "scn-1")

	if err := c.Reconcile(ctx, "run-1"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	run, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status.Phase != types.RunPhaseCompleted {
		t.Errorf("expected Completed, got %s (%s)", run.Status.Phase, run.Status.Message)
	}
	if run.Status.Execution == nil || run.Status.Execution.ExitCode != 0 {
		t.Errorf("unexpected execution result: %+v", run.Status.Execution)
	}
	if run.Status.Build == nil || !run.Status.Build.Succeeded() {
		t.Errorf("unexpected build result: %+v", run.Status.Build)
	}
	if run.Status.StartedAt.IsZero() || run.Status.FinishedAt.IsZero() {
		t.Error("expected start and finish timestamps")
	}
}

func TestReconcileMissingScenario(t *testing.T) {
	requireTools(t, "sh", "tar")
	c, s := newTestController(t)
	ctx := context.Background()

	seedRun(t, s, "run-1", "scn-missing")

	if err := c.Reconcile(ctx, "run-1"); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}

	run, _ := s.GetRun(ctx, "run-1")
	if run.Status.Phase != types.RunPhaseFailed {
		t.Errorf("expected Failed, got %s", run.Status.Phase)
	}
	if !strings.Contains(run.Status.Message, "not found") {
		t.Errorf("unexpected message: %s", run.Status.Message)
	}
}

func TestReconcileSkipsTerminalRuns(t *testing.T) {
	c, s := newTestController(t)
	ctx := context.Background()

	run := &types.Run{
		Metadata: types.ResourceMeta{Name: "run-done"},
		Spec:     types.RunSpec{ScenarioRef: "scn-1"},
		Status:   types.RunStatus{Phase: types.RunPhaseCompleted},
	}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatal(err)
	}

	if err := c.Reconcile(ctx, "run-done"); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	// No status write happened.
	after, _ := s.GetRun(ctx, "run-done")
	if after.Metadata.Generation != 1 {
		t.Errorf("expected generation 1, got %d", after.Metadata.Generation)
	}
}

func TestReconcileDeletedRun(t *testing.T) {
	c, _ := newTestController(t)

	if err := c.Reconcile(context.Background(), "run-gone"); err != nil {
		t.Errorf("expected nil for deleted run, got %v", err)
	}
}

func TestCancelInflightRun(t *testing.T) {
	requireTools(t, "sh", "tar")
	c, s := newTestController(t)
	ctx := context.Background()

	seedScenario(t, s, "scn-slow", "sleep 30")
	seedRun(t, s, "run-slow", "scn-slow")

	done := make(chan error, 1)
	go func() {
		done <- c.Reconcile(ctx, "run-slow")
	}()

	// Wait for the run to register its cancel func, then abort it.
	deadline := time.After(10 * time.Second)
	for !c.Cancel("run-slow") {
		select {
		case <-deadline:
			t.Fatal("run never became cancellable")
		case <-time.After(20 * time.Millisecond):
		}
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Reconcile returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Reconcile did not return after cancel")
	}

	run, _ := s.GetRun(ctx, "run-slow")
	if run.Status.Phase != types.RunPhaseFailed {
		t.Errorf("expected Failed after cancel, got %s", run.Status.Phase)
	}

	// Cancel on a finished run reports not running.
	if c.Cancel("run-slow") {
		t.Error("Cancel returned true for a finished run")
	}
}

func TestReconcileDeletedRunFreesScenarioSlot(t *testing.T) {
	c, _ := newTestController(t)

	// The slot was claimed at submission, then the run record was
	// deleted before the controller picked it up.
	if err := c.engine.Registry.Begin("scn-1", "run-gone"); err != nil {
		t.Fatal(err)
	}

	if err := c.Reconcile(context.Background(), "run-gone"); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}

	if _, held := c.engine.Registry.Active("scn-1"); held {
		t.Error("scenario slot still held after reconciling a deleted run")
	}
	if err := c.engine.Registry.Begin("scn-1", "run-next"); err != nil {
		t.Errorf("scenario cannot be resubmitted: %v", err)
	}
}

func TestReconcileMissingScenarioFreesSlot(t *testing.T) {
	requireTools(t, "sh", "tar")
	c, s := newTestController(t)
	ctx := context.Background()

	seedRun(t, s, "run-1", "scn-missing")
	if err := c.engine.Registry.Begin("scn-missing", "run-1"); err != nil {
		t.Fatal(err)
	}

	if err := c.Reconcile(ctx, "run-1"); err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}

	run, _ := s.GetRun(ctx, "run-1")
	if run.Status.Phase != types.RunPhaseFailed {
		t.Errorf("expected Failed, got %s", run.Status.Phase)
	}
	if _, held := c.engine.Registry.Active("scn-missing"); held {
		t.Error("scenario slot still held after the run failed without executing")
	}
}

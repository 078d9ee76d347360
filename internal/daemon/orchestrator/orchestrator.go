// Package orchestrator drives a scenario run through its lifecycle:
// Pending, Extracting, Patching, Building, Validating, then Completed
// or Failed. A failing validation exit code is a Completed run; Failed
// is reserved for the engine being unable to produce a verdict.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/squareslab/bugzood/internal/daemon/builder"
	"github.com/squareslab/bugzood/internal/daemon/patcher"
	"github.com/squareslab/bugzood/internal/daemon/source"
	"github.com/squareslab/bugzood/internal/daemon/types"
	"github.com/squareslab/bugzood/internal/daemon/validator"
	"github.com/squareslab/bugzood/internal/daemon/workspace"
)

// ProgressCallback is called when the run phase changes.
type ProgressCallback func(phase string, message string)

// Config contains the injectable dependencies for an Orchestrator.
type Config struct {
	// Workspaces allocates and releases scenario workspaces.
	Workspaces *workspace.Manager

	// Source materializes scenario source archives.
	Source *source.Fetcher

	// Patcher applies scenario patches.
	Patcher *patcher.Applicator

	// Builder runs the build step pipeline.
	Builder *builder.Executor

	// Validator runs the validation command.
	Validator *validator.Runner

	// Registry enforces single-flight per scenario.
	Registry *Registry

	// RetainFailed keeps workspaces of failed runs for inspection.
	RetainFailed bool

	// Logger for logging run progress.
	Logger *slog.Logger
}

// ExecuteOptions parameterizes a single run.
type ExecuteOptions struct {
	// RunID identifies the run claiming the scenario slot.
	RunID string

	// Retain keeps the workspace regardless of outcome.
	Retain bool

	// OnProgress is invoked on every phase change.
	OnProgress ProgressCallback
}

// Outcome carries the results of a finished run.
type Outcome struct {
	// Build is set once the patch-and-build pipeline has produced a
	// verdict, including failure verdicts.
	Build *types.BuildResult

	// Execution is set when validation ran to a verdict.
	Execution *types.ExecutionResult

	// Duration is the wall-clock time of the whole run.
	Duration time.Duration
}

// Orchestrator executes one scenario run. Create a fresh instance per
// run; phase state is not reusable.
type Orchestrator struct {
	config Config
	logger *slog.Logger

	mu       sync.RWMutex
	phase    string
	lastErr  error
	progress ProgressCallback
}

// New creates an orchestrator with the given config.
func New(config Config) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		config: config,
		logger: logger,
		phase:  types.RunPhasePending,
	}
}

// CurrentPhase returns the current run phase.
func (o *Orchestrator) CurrentPhase() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phase
}

// GetError returns the last error that occurred during the run.
func (o *Orchestrator) GetError() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastErr
}

// setPhase updates the current phase and notifies the progress callback.
func (o *Orchestrator) setPhase(phase, message string) {
	o.mu.Lock()
	o.phase = phase
	callback := o.progress
	o.mu.Unlock()

	o.logger.Info("run phase changed",
		"phase", phase,
		"message", message,
	)

	if callback != nil {
		callback(phase, message)
	}
}

// setError records an error and transitions to Failed.
func (o *Orchestrator) setError(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.phase = types.RunPhaseFailed
	callback := o.progress
	o.mu.Unlock()

	o.logger.Error("run failed",
		"error", err,
	)

	if callback != nil {
		callback(types.RunPhaseFailed, err.Error())
	}
}

// Execute runs the scenario to a terminal phase. The scenario slot is
// claimed from the registry for the duration; a second run for the
// same scenario gets ErrAlreadyRunning without touching the workspace.
func (o *Orchestrator) Execute(ctx context.Context, scenario *types.Scenario, opts ExecuteOptions) (*Outcome, error) {
	scenarioID := scenario.Metadata.Name

	o.mu.Lock()
	o.progress = opts.OnProgress
	o.mu.Unlock()

	if o.config.Registry != nil {
		if err := o.config.Registry.Begin(scenarioID, opts.RunID); err != nil {
			return nil, err
		}
		defer o.config.Registry.End(scenarioID, opts.RunID)
	}

	o.logger.Info("run starting",
		"scenario", scenarioID,
		"run", opts.RunID,
		"patches", len(scenario.Spec.Patches),
		"buildSteps", len(scenario.Spec.BuildSteps),
	)

	start := time.Now()
	outcome := &Outcome{}

	if err := ctx.Err(); err != nil {
		o.setError(fmt.Errorf("run cancelled: %w", err))
		return outcome, o.lastErr
	}

	// Phase 1: Extracting
	o.setPhase(types.RunPhaseExtracting, "Allocating workspace and extracting source")

	ws, err := o.config.Workspaces.Acquire(scenarioID)
	if err != nil {
		o.setError(fmt.Errorf("workspace allocation failed: %w", err))
		return outcome, o.lastErr
	}

	if err := o.config.Source.Provision(ctx, scenario.Spec.Source, ws); err != nil {
		o.finishWorkspace(ws, opts, true, outcome)
		o.setError(fmt.Errorf("source extraction failed: %w", err))
		return outcome, o.lastErr
	}

	// Phase 2: Patching
	if err := ctx.Err(); err != nil {
		o.finishWorkspace(ws, opts, true, outcome)
		o.setError(fmt.Errorf("run cancelled: %w", err))
		return outcome, o.lastErr
	}

	if len(scenario.Spec.Patches) > 0 {
		o.setPhase(types.RunPhasePatching, fmt.Sprintf("Applying %d patches", len(scenario.Spec.Patches)))

		if err := o.config.Patcher.Apply(ctx, ws.SourceDir, scenario.Spec.Patches, patchStrip(scenario)); err != nil {
			if perr, ok := err.(*patcher.PatchError); ok {
				outcome.Build = &types.BuildResult{
					State:       types.BuildPatchFailed,
					FailedPatch: perr.Index,
				}
			}
			o.finishWorkspace(ws, opts, true, outcome)
			o.setError(fmt.Errorf("patching failed: %w", err))
			return outcome, o.lastErr
		}
	}

	// Phase 3: Building
	if err := ctx.Err(); err != nil {
		o.finishWorkspace(ws, opts, true, outcome)
		o.setError(fmt.Errorf("run cancelled: %w", err))
		return outcome, o.lastErr
	}

	o.setPhase(types.RunPhaseBuilding, fmt.Sprintf("Running %d build steps", len(scenario.Spec.BuildSteps)))

	buildResult, err := o.config.Builder.Execute(ctx, ws, scenario.Spec.BuildSteps)
	outcome.Build = buildResult
	if err != nil {
		o.finishWorkspace(ws, opts, true, outcome)
		o.setError(fmt.Errorf("build failed: %w", err))
		return outcome, o.lastErr
	}

	// Phase 4: Validating
	if err := ctx.Err(); err != nil {
		o.finishWorkspace(ws, opts, true, outcome)
		o.setError(fmt.Errorf("run cancelled: %w", err))
		return outcome, o.lastErr
	}

	o.setPhase(types.RunPhaseValidating, "Running validation command")

	execResult, err := o.config.Validator.Validate(ctx, ws, scenario.Spec.Validation)
	if err != nil {
		o.finishWorkspace(ws, opts, true, outcome)
		o.setError(fmt.Errorf("validation could not run: %w", err))
		return outcome, o.lastErr
	}
	outcome.Execution = execResult

	o.finishWorkspace(ws, opts, false, outcome)
	outcome.Duration = time.Since(start)

	message := fmt.Sprintf("Validation exited %d", execResult.ExitCode)
	if execResult.TimedOut {
		message = "Validation timed out"
	}
	o.setPhase(types.RunPhaseCompleted, message)

	o.logger.Info("run complete",
		"scenario", scenarioID,
		"run", opts.RunID,
		"exitCode", execResult.ExitCode,
		"timedOut", execResult.TimedOut,
		"duration", outcome.Duration,
	)

	return outcome, nil
}

// finishWorkspace releases or retains the workspace and records the
// surviving path on the build result so collaborators can find it.
func (o *Orchestrator) finishWorkspace(ws *workspace.Workspace, opts ExecuteOptions, failed bool, outcome *Outcome) {
	retain := opts.Retain || (failed && o.config.RetainFailed)

	err := o.config.Workspaces.Release(ws, retain)
	if err != nil {
		o.logger.Warn("workspace release failed",
			"scenario", ws.ScenarioID,
			"error", err)
	}

	if outcome.Build != nil {
		outcome.Build.Workspace = workspaceRef(ws, retain, err)
	}
}

// workspaceRef is the workspace path to record on the build result. A
// failed removal leaves a partial tree; that is never reported as a
// usable workspace.
func workspaceRef(ws *workspace.Workspace, retain bool, releaseErr error) string {
	if retain && releaseErr == nil {
		return ws.Root
	}
	return ""
}

// patchStrip returns the patch strip level, defaulting to 1.
func patchStrip(scenario *types.Scenario) int {
	if scenario.Spec.PatchStrip > 0 {
		return scenario.Spec.PatchStrip
	}
	return 1
}

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/squareslab/bugzood/internal/daemon/orchestrator"
	"github.com/squareslab/bugzood/internal/daemon/store"
	"github.com/squareslab/bugzood/internal/daemon/types"
)

// statusUpdateRetries bounds get-modify-update loops on generation
// conflicts before the reconcile is retried from scratch.
const statusUpdateRetries = 5

// RunController executes pending runs. Each reconcile drives one run
// record to a terminal phase; replayed ADDED events after a daemon
// restart land here too, so runs interrupted by a crash are retried or
// fail cleanly on their stale workspace.
type RunController struct {
	store  store.Store
	engine orchestrator.Config
	logger *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// RunControllerConfig configures a RunController.
type RunControllerConfig struct {
	// Store persists run status transitions.
	Store store.Store

	// Engine is the orchestrator configuration used for each run.
	Engine orchestrator.Config

	// Logger for logging reconcile activity.
	Logger *slog.Logger
}

// NewRunController creates a run controller.
func NewRunController(config RunControllerConfig) *RunController {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RunController{
		store:   config.Store,
		engine:  config.Engine,
		logger:  logger,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Cancel aborts an in-flight run. Returns false when the run is not
// currently executing.
func (c *RunController) Cancel(runID string) bool {
	c.mu.Lock()
	cancel, exists := c.cancels[runID]
	c.mu.Unlock()

	if exists {
		cancel()
	}
	return exists
}

// Reconcile drives the run with the given key to a terminal phase.
func (c *RunController) Reconcile(ctx context.Context, key string) error {
	run, err := c.store.GetRun(ctx, key)
	if store.IsNotFound(err) {
		// Deleted between enqueue and reconcile. The run may still hold
		// the scenario slot claimed at submission.
		c.releaseSlot(key)
		return nil
	}
	if err != nil {
		return err
	}

	if run.Terminal() {
		return nil
	}

	scenario, err := c.store.GetScenario(ctx, run.Spec.ScenarioRef)
	if store.IsNotFound(err) {
		c.releaseSlot(key)
		return c.fail(key, fmt.Sprintf("scenario %q not found", run.Spec.ScenarioRef), nil)
	}
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancels[key] = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.cancels, key)
		c.mu.Unlock()
	}()

	if err := c.updateStatus(key, func(r *types.Run) {
		r.Status.StartedAt = time.Now()
	}); err != nil {
		return err
	}

	activeRuns.Inc()
	defer activeRuns.Dec()

	outcome, execErr := orchestrator.New(c.engine).Execute(runCtx, scenario, orchestrator.ExecuteOptions{
		RunID:  key,
		Retain: run.Spec.Retain,
		OnProgress: func(phase, message string) {
			// Terminal phases are persisted below together with the
			// results, in one write.
			if phase == types.RunPhaseCompleted || phase == types.RunPhaseFailed {
				return
			}
			if err := c.updateStatus(key, func(r *types.Run) {
				r.Status.Phase = phase
				r.Status.Message = message
			}); err != nil {
				c.logger.Warn("failed to persist run phase",
					"run", key,
					"phase", phase,
					"error", err)
			}
		},
	})

	if errors.Is(execErr, orchestrator.ErrAlreadyRunning) {
		return c.fail(key, fmt.Sprintf("scenario %q already has a run in flight", scenario.Metadata.Name), nil)
	}

	finished := time.Now()
	err = c.updateStatus(key, func(r *types.Run) {
		r.Status.FinishedAt = finished
		if outcome != nil {
			r.Status.Build = outcome.Build
			r.Status.Execution = outcome.Execution
		}
		if execErr != nil {
			r.Status.Phase = types.RunPhaseFailed
			r.Status.Message = execErr.Error()
		} else {
			r.Status.Phase = types.RunPhaseCompleted
			r.Status.Message = completionMessage(outcome)
		}
	})
	if err != nil {
		return err
	}

	phase := types.RunPhaseCompleted
	if execErr != nil {
		phase = types.RunPhaseFailed
	}
	runsTotal.WithLabelValues(phase).Inc()
	if outcome != nil {
		runDuration.Observe(outcome.Duration.Seconds())
	}

	c.logger.Info("run reconciled",
		"run", key,
		"scenario", scenario.Metadata.Name,
		"phase", phase)

	return nil
}

// releaseSlot frees the scenario slot held by a run that will never
// reach the orchestrator, whose deferred release otherwise handles it.
func (c *RunController) releaseSlot(runID string) {
	if c.engine.Registry != nil {
		c.engine.Registry.EndRun(runID)
	}
}

// fail marks the run Failed with the given message.
func (c *RunController) fail(key, message string, build *types.BuildResult) error {
	err := c.updateStatus(key, func(r *types.Run) {
		r.Status.Phase = types.RunPhaseFailed
		r.Status.Message = message
		r.Status.FinishedAt = time.Now()
		if build != nil {
			r.Status.Build = build
		}
	})
	if err != nil {
		return err
	}
	runsTotal.WithLabelValues(types.RunPhaseFailed).Inc()
	return nil
}

// updateStatus applies mutate inside a get-modify-update loop so
// concurrent writers only cost a retry, never a lost update.
func (c *RunController) updateStatus(key string, mutate func(*types.Run)) error {
	ctx := context.Background()

	for attempt := 0; attempt < statusUpdateRetries; attempt++ {
		run, err := c.store.GetRun(ctx, key)
		if err != nil {
			return err
		}
		mutate(run)
		err = c.store.UpdateRun(ctx, run)
		if err == nil {
			return nil
		}
		if !store.IsConflict(err) {
			return err
		}
	}
	return fmt.Errorf("failed to update run %s: too many conflicts", key)
}

// completionMessage summarizes a completed run for the status record.
func completionMessage(outcome *orchestrator.Outcome) string {
	if outcome == nil || outcome.Execution == nil {
		return "completed"
	}
	if outcome.Execution.TimedOut {
		return "validation timed out"
	}
	return fmt.Sprintf("validation exited %d", outcome.Execution.ExitCode)
}

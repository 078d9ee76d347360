// Package builder runs scenario build steps inside a workspace. Steps
// execute sequentially; the first non-zero exit aborts the pipeline
// and the step's role determines the failure state reported upstream.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/squareslab/bugzood/internal/daemon/command"
	"github.com/squareslab/bugzood/internal/daemon/types"
	"github.com/squareslab/bugzood/internal/daemon/workspace"
)

// Executor runs build step pipelines.
type Executor struct {
	runner *command.Runner
	logger *slog.Logger
}

// Config configures an Executor.
type Config struct {
	// Runner executes build step subprocesses.
	Runner *command.Runner

	// Logger for logging build progress.
	Logger *slog.Logger
}

// NewExecutor creates a build executor.
func NewExecutor(config Config) *Executor {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		runner: config.Runner,
		logger: logger,
	}
}

// Execute runs the steps in order inside the workspace. The returned
// BuildResult always reflects what ran; when a step exits non-zero the
// result carries the role-specific failure state and the error is a
// *StepError for the failing step.
//
// Each step sees the daemon environment with its own overrides merged
// on top, plus PREFIX pointing at the workspace install prefix unless
// the step overrides it.
func (e *Executor) Execute(ctx context.Context, ws *workspace.Workspace, steps []types.BuildStep) (*types.BuildResult, error) {
	start := time.Now()
	result := &types.BuildResult{State: types.BuildSuccess}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			result.State = failureState(step.Role)
			result.Duration = time.Since(start)
			return result, err
		}

		dir := ws.SourceDir
		if step.Dir != "" {
			dir = filepath.Join(ws.SourceDir, step.Dir)
		}

		env := map[string]string{"PREFIX": ws.Prefix}
		for k, v := range step.Env {
			env[k] = v
		}

		e.logger.Info("running build step",
			"index", i,
			"role", step.Role,
			"command", step.Command)

		res, err := e.runner.Run(ctx, command.Request{
			Command: step.Command,
			Args:    step.Args,
			Dir:     dir,
			Env:     env,
		})
		if err != nil {
			result.State = failureState(step.Role)
			result.Duration = time.Since(start)
			return result, &StepError{Step: step, Index: i, Err: err}
		}

		stepResult := types.StepResult{
			Name:      step.Name,
			Role:      step.Role,
			ExitCode:  res.ExitCode,
			Stdout:    res.Stdout,
			Stderr:    res.Stderr,
			Duration:  res.Duration,
			Truncated: res.Truncated,
		}
		result.Steps = append(result.Steps, stepResult)

		if res.ExitCode != 0 {
			result.State = failureState(step.Role)
			result.Duration = time.Since(start)
			e.logger.Warn("build step failed",
				"index", i,
				"role", step.Role,
				"exitCode", res.ExitCode)
			return result, &StepError{
				Step:  step,
				Index: i,
				Err:   fmt.Errorf("exit code %d", res.ExitCode),
			}
		}
	}

	result.Workspace = ws.Root
	result.Duration = time.Since(start)
	return result, nil
}

// failureState maps a step role to its build failure state.
func failureState(role string) string {
	switch role {
	case types.StepRoleConfigure:
		return types.BuildConfigureFailed
	case types.StepRoleInstall:
		return types.BuildInstallFailed
	default:
		return types.BuildCompileFailed
	}
}

// Package validator runs a scenario's validation command against a
// built workspace. The install prefix's bin directory is prepended to
// PATH so the command picks up freshly built artifacts, and the run is
// bounded by the scenario's timeout.
package validator

import (
	"context"
	"log/slog"
	"time"

	"github.com/squareslab/bugzood/internal/daemon/command"
	"github.com/squareslab/bugzood/internal/daemon/types"
	"github.com/squareslab/bugzood/internal/daemon/workspace"
)

// DefaultTimeout bounds validation runs when the scenario does not
// declare its own limit.
const DefaultTimeout = 10 * time.Minute

// Runner executes validation commands.
type Runner struct {
	cmd            *command.Runner
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// Config configures a validation Runner.
type Config struct {
	// Runner executes the validation subprocess.
	Runner *command.Runner

	// DefaultTimeout applies when a scenario declares no timeout.
	DefaultTimeout time.Duration

	// Logger for logging validation progress.
	Logger *slog.Logger
}

// NewRunner creates a validation runner.
func NewRunner(config Config) *Runner {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := config.DefaultTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{
		cmd:            config.Runner,
		defaultTimeout: timeout,
		logger:         logger,
	}
}

// Validate runs the validation command in the workspace source tree.
// A non-zero exit code is a legitimate result (the scenario's bug
// manifesting), not an error. A timeout kills the whole process group
// and is reported via TimedOut with exit code -1.
func (r *Runner) Validate(ctx context.Context, ws *workspace.Workspace, spec types.ValidationSpec) (*types.ExecutionResult, error) {
	timeout := r.defaultTimeout
	if spec.TimeoutSeconds > 0 {
		timeout = time.Duration(spec.TimeoutSeconds) * time.Second
	}

	env := map[string]string{"PREFIX": ws.Prefix}
	for k, v := range spec.Env {
		env[k] = v
	}

	r.logger.Info("running validation",
		"scenario", ws.ScenarioID,
		"command", spec.Command,
		"timeout", timeout)

	res, err := r.cmd.Run(ctx, command.Request{
		Command:   spec.Command,
		Args:      spec.Args,
		Dir:       ws.SourceDir,
		Env:       env,
		ExtraPath: ws.BinDir(),
		Timeout:   timeout,
	})
	if err != nil {
		return nil, err
	}

	result := &types.ExecutionResult{
		ExitCode:  res.ExitCode,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
		Duration:  res.Duration,
		TimedOut:  res.TimedOut,
		Truncated: res.Truncated,
	}

	r.logger.Info("validation finished",
		"scenario", ws.ScenarioID,
		"exitCode", result.ExitCode,
		"timedOut", result.TimedOut,
		"duration", result.Duration)

	return result, nil
}

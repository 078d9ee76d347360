// Package patcher applies scenario patches to an extracted source
// tree. Patches are opaque artifacts applied strictly in order by the
// system patch tool with fuzz disabled: a hunk that does not apply at
// its exact context is a failure, never a best-effort match.
package patcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/squareslab/bugzood/internal/daemon/command"
)

// Applicator applies ordered patch sequences.
type Applicator struct {
	runner *command.Runner
	logger *slog.Logger
}

// Config configures an Applicator.
type Config struct {
	// Runner executes the patch subprocess.
	Runner *command.Runner

	// Logger for logging patch progress.
	Logger *slog.Logger
}

// NewApplicator creates a patch applicator.
func NewApplicator(config Config) *Applicator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Applicator{
		runner: config.Runner,
		logger: logger,
	}
}

// Apply applies the patches to sourceDir in order, stopping at the
// first failure. Each patch is dry-run first so that a rejected patch
// leaves no partial hunks behind; the returned PatchError names the
// failing index and the caller is expected to discard the workspace.
func (a *Applicator) Apply(ctx context.Context, sourceDir string, patches []string, strip int) error {
	for i, patch := range patches {
		if err := ctx.Err(); err != nil {
			return err
		}

		a.logger.Debug("applying patch",
			"index", i,
			"patch", patch)

		if err := a.runPatch(ctx, sourceDir, patch, strip, true); err != nil {
			return &PatchError{Index: i, Patch: patch, Reason: fmt.Sprintf("dry run rejected: %v", err)}
		}
		if err := a.runPatch(ctx, sourceDir, patch, strip, false); err != nil {
			return &PatchError{Index: i, Patch: patch, Reason: err.Error()}
		}
	}
	return nil
}

// runPatch invokes the patch tool once.
func (a *Applicator) runPatch(ctx context.Context, sourceDir, patch string, strip int, dryRun bool) error {
	args := []string{
		"--batch",
		"--fuzz=0",
		fmt.Sprintf("-p%d", strip),
		"-d", sourceDir,
		"-i", patch,
	}
	if dryRun {
		args = append(args, "--dry-run")
	}

	res, err := a.runner.Run(ctx, command.Request{
		Command: "patch",
		Args:    args,
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		out := strings.TrimSpace(res.Stderr)
		if out == "" {
			out = strings.TrimSpace(res.Stdout)
		}
		return fmt.Errorf("patch exited %d: %s", res.ExitCode, out)
	}
	return nil
}

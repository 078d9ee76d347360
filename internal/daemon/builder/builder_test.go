package builder

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/squareslab/bugzood/internal/daemon/command"
	"github.com/squareslab/bugzood/internal/daemon/types"
	"github.com/squareslab/bugzood/internal/daemon/workspace"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func newTestWorkspace(t *testing.T) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.NewManager(t.TempDir(), nil).Acquire("scn")
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

func newExecutor() *Executor {
	return NewExecutor(Config{Runner: command.NewRunner(command.Config{})})
}

func sh(role, script string) types.BuildStep {
	return types.BuildStep{
		Role:    role,
		Command: "sh",
		Args:    []string{"-c", script},
	}
}

func TestExecuteAllStepsSucceed(t *testing.T) {
	requireShell(t)
	ws := newTestWorkspace(t)

	steps := []types.BuildStep{
		sh(types.StepRoleConfigure, "echo configured > configure.log"),
		sh(types.StepRoleCompile, "echo compiled"),
		sh(types.StepRoleInstall, `cp configure.log "$PREFIX/bin/artifact"`),
	}

	result, err := newExecutor().Execute(context.Background(), ws, steps)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.State != types.BuildSuccess {
		t.Errorf("expected Success, got %s", result.State)
	}
	if len(result.Steps) != 3 {
		t.Fatalf("expected 3 step results, got %d", len(result.Steps))
	}
	if result.Workspace != ws.Root {
		t.Errorf("expected workspace ref %s, got %s", ws.Root, result.Workspace)
	}
	if strings.TrimSpace(result.Steps[1].Stdout) != "compiled" {
		t.Errorf("step output not captured: %q", result.Steps[1].Stdout)
	}
	// PREFIX was exported: the install step copied into local-root/bin.
	if _, err := os.Stat(filepath.Join(ws.BinDir(), "artifact")); err != nil {
		t.Errorf("install step did not see PREFIX: %v", err)
	}
}

func TestExecuteStepsRunInSourceDir(t *testing.T) {
	requireShell(t)
	ws := newTestWorkspace(t)
	if err := os.MkdirAll(filepath.Join(ws.SourceDir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	steps := []types.BuildStep{
		{Role: types.StepRoleCompile, Command: "sh", Args: []string{"-c", "pwd"}, Dir: "sub"},
	}
	result, err := newExecutor().Execute(context.Background(), ws, steps)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := strings.TrimSpace(result.Steps[0].Stdout); !strings.HasSuffix(got, filepath.Join("source", "sub")) {
		t.Errorf("expected declared subdir as workdir, got %q", got)
	}
}

func TestExecuteFailureStateByRole(t *testing.T) {
	requireShell(t)

	cases := []struct {
		role  string
		state string
	}{
		{types.StepRoleConfigure, types.BuildConfigureFailed},
		{types.StepRoleCompile, types.BuildCompileFailed},
		{types.StepRoleInstall, types.BuildInstallFailed},
	}

	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			ws := newTestWorkspace(t)
			steps := []types.BuildStep{sh(tc.role, "echo boom >&2; exit 3")}

			result, err := newExecutor().Execute(context.Background(), ws, steps)
			if err == nil {
				t.Fatal("expected error for failing step")
			}
			var serr *StepError
			if !errors.As(err, &serr) {
				t.Fatalf("expected StepError, got %T", err)
			}
			if result.State != tc.state {
				t.Errorf("expected state %s, got %s", tc.state, result.State)
			}
			last := result.Steps[len(result.Steps)-1]
			if last.ExitCode != 3 {
				t.Errorf("expected exit 3, got %d", last.ExitCode)
			}
			if strings.TrimSpace(last.Stderr) != "boom" {
				t.Errorf("stderr not captured: %q", last.Stderr)
			}
		})
	}
}

func TestExecuteAbortsAfterFailure(t *testing.T) {
	requireShell(t)
	ws := newTestWorkspace(t)

	marker := filepath.Join(ws.SourceDir, "should-not-exist")
	steps := []types.BuildStep{
		sh(types.StepRoleConfigure, "true"),
		sh(types.StepRoleCompile, "exit 1"),
		sh(types.StepRoleInstall, "touch "+marker),
	}

	result, err := newExecutor().Execute(context.Background(), ws, steps)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(result.Steps) != 2 {
		t.Errorf("expected 2 step results, got %d", len(result.Steps))
	}
	if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
		t.Error("step after failure must not run")
	}
}

func TestExecuteStepEnvOverridesPrefix(t *testing.T) {
	requireShell(t)
	ws := newTestWorkspace(t)

	step := types.BuildStep{
		Role:    types.StepRoleCompile,
		Command: "sh",
		Args:    []string{"-c", "echo $PREFIX"},
		Env:     map[string]string{"PREFIX": "/custom"},
	}

	result, err := newExecutor().Execute(context.Background(), ws, []types.BuildStep{step})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if got := strings.TrimSpace(result.Steps[0].Stdout); got != "/custom" {
		t.Errorf("step env should override PREFIX, got %q", got)
	}
}

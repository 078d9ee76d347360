// internal/daemon/types/result.go
package types

import "time"

// Build states. Failure states name the pipeline stage that failed.
const (
	BuildSuccess         = "Success"
	BuildPatchFailed     = "PatchFailed"
	BuildConfigureFailed = "ConfigureFailed"
	BuildCompileFailed   = "CompileFailed"
	BuildInstallFailed   = "InstallFailed"
)

// BuildResult is the outcome of the patch-and-build pipeline.
type BuildResult struct {
	// State is one of the Build* constants.
	State string `json:"state"`

	// Steps holds the per-step results in execution order. On failure
	// the last entry is the step that failed; steps after it never ran.
	Steps []StepResult `json:"steps,omitempty"`

	// FailedPatch is the zero-based index of the patch that failed to
	// apply. Only meaningful when State is PatchFailed.
	FailedPatch int `json:"failedPatch,omitempty"`

	// Workspace is the workspace root on disk. Set on success, and on
	// failure when the workspace was retained.
	Workspace string `json:"workspace,omitempty"`

	// Duration is the wall-clock time of the whole pipeline.
	Duration time.Duration `json:"duration,omitempty"`
}

// Succeeded reports whether the build completed all steps.
func (r *BuildResult) Succeeded() bool {
	return r != nil && r.State == BuildSuccess
}

// StepResult captures the outcome of a single build step.
type StepResult struct {
	Name     string        `json:"name,omitempty"`
	Role     string        `json:"role"`
	ExitCode int           `json:"exitCode"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`

	// Truncated is true when either output stream hit the capture cap.
	Truncated bool `json:"truncated,omitempty"`
}

// ExecutionResult captures the outcome of the validation command.
// A non-zero exit code is a legitimate result, not an engine failure.
type ExecutionResult struct {
	// ExitCode is the process exit code, or -1 when the run timed out
	// or was killed before producing one.
	ExitCode int `json:"exitCode"`

	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`

	// TimedOut is true when the command exceeded its time budget and
	// its process group was killed.
	TimedOut bool `json:"timedOut,omitempty"`

	// Truncated is true when either output stream hit the capture cap.
	Truncated bool `json:"truncated,omitempty"`
}

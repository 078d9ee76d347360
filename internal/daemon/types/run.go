// internal/daemon/types/run.go
package types

import "time"

// Phase constants for Run.
const (
	RunPhasePending    = "Pending"
	RunPhaseExtracting = "Extracting"
	RunPhasePatching   = "Patching"
	RunPhaseBuilding   = "Building"
	RunPhaseValidating = "Validating"
	RunPhaseCompleted  = "Completed"
	RunPhaseFailed     = "Failed"
)

// Run represents one build-and-validate execution of a scenario.
type Run struct {
	Metadata ResourceMeta `json:"metadata"`
	Spec     RunSpec      `json:"spec"`
	Status   RunStatus    `json:"status"`
}

// RunSpec defines the desired execution.
type RunSpec struct {
	// ScenarioRef is the name of the scenario to execute.
	ScenarioRef string `json:"scenarioRef"`

	// Retain keeps the workspace on disk after the run finishes,
	// regardless of outcome.
	Retain bool `json:"retain,omitempty"`
}

// RunStatus is the observed state of a Run.
type RunStatus struct {
	// Phase is the current lifecycle phase.
	Phase string `json:"phase"`

	// Message provides additional status information.
	Message string `json:"message,omitempty"`

	// StartedAt is when execution left Pending.
	StartedAt time.Time `json:"startedAt,omitzero"`

	// FinishedAt is when the run reached a terminal phase.
	FinishedAt time.Time `json:"finishedAt,omitzero"`

	// Build holds the build outcome once the build pipeline has run.
	Build *BuildResult `json:"build,omitempty"`

	// Execution holds the validation outcome for completed runs.
	Execution *ExecutionResult `json:"execution,omitempty"`
}

// Terminal reports whether the run has reached a terminal phase.
func (r *Run) Terminal() bool {
	return r.Status.Phase == RunPhaseCompleted || r.Status.Phase == RunPhaseFailed
}

// internal/daemon/types/scenario.go
package types

// Build step roles. The role determines which failure state a
// non-zero exit maps to.
const (
	StepRoleConfigure = "configure"
	StepRoleCompile   = "compile"
	StepRoleInstall   = "install"
)

// Scenario describes a reproducible bug scenario: where the source
// comes from, which patches produce the buggy state, how to build it,
// and how to validate the built artifact.
//
// A Scenario has no Status: the spec is immutable once stored, and all
// observed state lives on Run resources.
type Scenario struct {
	Metadata ResourceMeta `json:"metadata"`
	Spec     ScenarioSpec `json:"spec"`
}

// ScenarioSpec defines the scenario recipe.
type ScenarioSpec struct {
	// Program is the name of the subject program (e.g., "python", "libtiff").
	Program string `json:"program,omitempty"`

	// Languages lists the implementation languages of the subject.
	Languages []string `json:"languages,omitempty"`

	// Source describes the source archive to materialize.
	Source SourceSpec `json:"source"`

	// Patches are paths to patch files, applied strictly in order.
	Patches []string `json:"patches,omitempty"`

	// PatchStrip is the path-prefix strip level passed to the patch tool.
	PatchStrip int `json:"patchStrip,omitempty"`

	// BuildSteps are executed in order inside the workspace source tree.
	BuildSteps []BuildStep `json:"buildSteps"`

	// Validation describes the command that exercises the built artifact.
	Validation ValidationSpec `json:"validation"`
}

// SourceSpec describes where the source archive comes from.
type SourceSpec struct {
	// Archive is a local filesystem path or an http(s) URL.
	Archive string `json:"archive"`

	// SHA256 is the expected hex digest of the archive. Empty skips
	// verification.
	SHA256 string `json:"sha256,omitempty"`

	// StripComponents strips leading path components during extraction.
	StripComponents int `json:"stripComponents,omitempty"`
}

// BuildStep is one command in the build pipeline. Args are passed to
// the command verbatim; the engine never interprets them.
type BuildStep struct {
	// Name is an optional human-readable label for the step.
	Name string `json:"name,omitempty"`

	// Role is one of "configure", "compile", "install".
	Role string `json:"role"`

	// Command is the executable to run.
	Command string `json:"command"`

	// Args are the command arguments.
	Args []string `json:"args,omitempty"`

	// Env contains step-level environment overrides. They win over the
	// daemon's own environment.
	Env map[string]string `json:"env,omitempty"`

	// Dir is the working directory relative to the workspace source
	// root. Empty means the source root itself.
	Dir string `json:"dir,omitempty"`
}

// ValidationSpec describes the validation command run after a
// successful build.
type ValidationSpec struct {
	// Command is the executable to run.
	Command string `json:"command"`

	// Args are the command arguments.
	Args []string `json:"args,omitempty"`

	// Env contains environment overrides for the validation run.
	Env map[string]string `json:"env,omitempty"`

	// TimeoutSeconds bounds the validation run. Zero uses the daemon's
	// configured default.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
}

// Package manifest parses scenario manifests. A manifest is a YAML
// document describing one scenario: where its source comes from, the
// patches that introduce the bug, how to build it, and the command
// whose exit code is the verdict.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/squareslab/bugzood/internal/daemon/types"
)

// Manifest is the on-disk YAML form of a scenario.
type Manifest struct {
	Name      string   `yaml:"name"`
	Program   string   `yaml:"program"`
	Languages []string `yaml:"languages"`

	Source struct {
		Archive         string `yaml:"archive"`
		SHA256          string `yaml:"sha256"`
		StripComponents int    `yaml:"strip_components"`
	} `yaml:"source"`

	Patches    []string `yaml:"patches"`
	PatchStrip *int     `yaml:"patch_strip"`

	Build []struct {
		Name    string            `yaml:"name"`
		Role    string            `yaml:"role"`
		Command string            `yaml:"command"`
		Args    []string          `yaml:"args"`
		Env     map[string]string `yaml:"env"`
		Dir     string            `yaml:"dir"`
	} `yaml:"build"`

	Validation struct {
		Command string            `yaml:"command"`
		Args    []string          `yaml:"args"`
		Env     map[string]string `yaml:"env"`
		Timeout string            `yaml:"timeout"`
	} `yaml:"validation"`
}

// Load reads and parses a manifest file and converts it to a scenario.
// Relative patch and archive paths are resolved against the manifest's
// directory so a scenario bundle can be moved as a unit.
func Load(path string) (*types.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	return Parse(data, filepath.Dir(abs))
}

// Parse converts manifest bytes to a scenario. baseDir anchors relative
// paths; empty leaves them as written.
func Parse(data []byte, baseDir string) (*types.Scenario, error) {
	var m Manifest
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	if err := validate(&m); err != nil {
		return nil, err
	}

	scenario := &types.Scenario{
		Metadata: types.ResourceMeta{Name: m.Name},
		Spec: types.ScenarioSpec{
			Program:   m.Program,
			Languages: m.Languages,
			Source: types.SourceSpec{
				Archive:         resolvePath(baseDir, m.Source.Archive),
				SHA256:          m.Source.SHA256,
				StripComponents: m.Source.StripComponents,
			},
			PatchStrip: 1,
		},
	}

	if m.PatchStrip != nil {
		scenario.Spec.PatchStrip = *m.PatchStrip
	}

	for _, p := range m.Patches {
		scenario.Spec.Patches = append(scenario.Spec.Patches, resolvePath(baseDir, p))
	}

	for _, step := range m.Build {
		role := step.Role
		if role == "" {
			role = types.StepRoleCompile
		}
		scenario.Spec.BuildSteps = append(scenario.Spec.BuildSteps, types.BuildStep{
			Name:    step.Name,
			Role:    role,
			Command: step.Command,
			Args:    step.Args,
			Env:     step.Env,
			Dir:     step.Dir,
		})
	}

	scenario.Spec.Validation = types.ValidationSpec{
		Command: m.Validation.Command,
		Args:    m.Validation.Args,
		Env:     m.Validation.Env,
	}
	if m.Validation.Timeout != "" {
		d, err := time.ParseDuration(m.Validation.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid validation timeout %q: %w", m.Validation.Timeout, err)
		}
		scenario.Spec.Validation.TimeoutSeconds = int(d / time.Second)
	}

	return scenario, nil
}

// validate checks the manifest for structural problems before it is
// converted. Errors name the offending field.
func validate(m *Manifest) error {
	var errs []string

	if m.Name == "" {
		errs = append(errs, "name is required")
	} else if strings.ContainsAny(m.Name, "/\\") || m.Name == "." || m.Name == ".." {
		errs = append(errs, fmt.Sprintf("name %q must not contain path elements", m.Name))
	}

	if m.Source.Archive == "" {
		errs = append(errs, "source.archive is required")
	}
	if m.Source.StripComponents < 0 {
		errs = append(errs, "source.strip_components must be non-negative")
	}
	if m.PatchStrip != nil && *m.PatchStrip < 0 {
		errs = append(errs, "patch_strip must be non-negative")
	}

	for i, p := range m.Patches {
		if p == "" {
			errs = append(errs, fmt.Sprintf("patches[%d] is empty", i))
		}
	}

	if len(m.Build) == 0 {
		errs = append(errs, "at least one build step is required")
	}
	for i, step := range m.Build {
		if step.Command == "" {
			errs = append(errs, fmt.Sprintf("build[%d].command is required", i))
		}
		switch step.Role {
		case "", types.StepRoleConfigure, types.StepRoleCompile, types.StepRoleInstall:
		default:
			errs = append(errs, fmt.Sprintf("build[%d].role %q is not one of configure, compile, install", i, step.Role))
		}
	}

	if m.Validation.Command == "" {
		errs = append(errs, "validation.command is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("manifest validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// resolvePath anchors a relative path at baseDir. URLs and absolute
// paths pass through unchanged.
func resolvePath(baseDir, p string) string {
	if baseDir == "" || p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return filepath.Join(baseDir, p)
}

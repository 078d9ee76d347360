package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/squareslab/bugzood/internal/daemon/types"
)

const fullManifest = `
name: libtiff-2005-12-14
program: libtiff
languages: [c]
source:
  archive: https://archives.example.com/libtiff-3.7.2.tar.gz
  sha256: 0dcda1f43d2e455c2e7f07ba764c03d28c4bef91a5e3fa57b0cfcca4bb3d9cfe
  strip_components: 1
patches:
  - patches/bug.patch
  - patches/tooling.patch
patch_strip: 0
build:
  - name: configure
    role: configure
    command: ./configure
    env:
      CFLAGS: "-g -O0"
  - name: compile
    role: compile
    command: make
    args: ["-j4"]
  - name: install
    role: install
    command: make
    args: [install]
validation:
  command: sh
  args: [run-tests.sh]
  timeout: 5m
`

func TestParseFullManifest(t *testing.T) {
	scenario, err := Parse([]byte(fullManifest), "/bundles/libtiff")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if scenario.Metadata.Name != "libtiff-2005-12-14" {
		t.Errorf("unexpected name: %s", scenario.Metadata.Name)
	}
	if scenario.Spec.Program != "libtiff" {
		t.Errorf("unexpected program: %s", scenario.Spec.Program)
	}

	// URLs pass through; relative patch paths are anchored.
	if scenario.Spec.Source.Archive != "https://archives.example.com/libtiff-3.7.2.tar.gz" {
		t.Errorf("archive URL was rewritten: %s", scenario.Spec.Source.Archive)
	}
	if scenario.Spec.Patches[0] != "/bundles/libtiff/patches/bug.patch" {
		t.Errorf("patch path not anchored: %s", scenario.Spec.Patches[0])
	}

	// Explicit zero strip must survive (distinct from "not set").
	if scenario.Spec.PatchStrip != 0 {
		t.Errorf("expected patch strip 0, got %d", scenario.Spec.PatchStrip)
	}

	if len(scenario.Spec.BuildSteps) != 3 {
		t.Fatalf("expected 3 build steps, got %d", len(scenario.Spec.BuildSteps))
	}
	if scenario.Spec.BuildSteps[0].Role != types.StepRoleConfigure {
		t.Errorf("unexpected first role: %s", scenario.Spec.BuildSteps[0].Role)
	}
	if scenario.Spec.BuildSteps[0].Env["CFLAGS"] != "-g -O0" {
		t.Errorf("step env lost: %v", scenario.Spec.BuildSteps[0].Env)
	}

	if scenario.Spec.Validation.TimeoutSeconds != 300 {
		t.Errorf("expected 300s timeout, got %d", scenario.Spec.Validation.TimeoutSeconds)
	}
}

func TestParseDefaults(t *testing.T) {
	minimal := `
name: demo
source:
  archive: /archives/demo.tar.gz
build:
  - command: make
validation:
  command: run-tests
`
	scenario, err := Parse([]byte(minimal), "")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if scenario.Spec.PatchStrip != 1 {
		t.Errorf("expected default patch strip 1, got %d", scenario.Spec.PatchStrip)
	}
	if scenario.Spec.BuildSteps[0].Role != types.StepRoleCompile {
		t.Errorf("expected default compile role, got %s", scenario.Spec.BuildSteps[0].Role)
	}
	if scenario.Spec.Validation.TimeoutSeconds != 0 {
		t.Errorf("expected no timeout, got %d", scenario.Spec.Validation.TimeoutSeconds)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"missing name": `
source: {archive: /a.tar.gz}
build: [{command: make}]
validation: {command: t}
`,
		"name with slash": `
name: a/b
source: {archive: /a.tar.gz}
build: [{command: make}]
validation: {command: t}
`,
		"missing archive": `
name: demo
build: [{command: make}]
validation: {command: t}
`,
		"no build steps": `
name: demo
source: {archive: /a.tar.gz}
validation: {command: t}
`,
		"bad role": `
name: demo
source: {archive: /a.tar.gz}
build: [{command: make, role: link}]
validation: {command: t}
`,
		"missing validation": `
name: demo
source: {archive: /a.tar.gz}
build: [{command: make}]
`,
		"bad timeout": `
name: demo
source: {archive: /a.tar.gz}
build: [{command: make}]
validation: {command: t, timeout: soon}
`,
		"unknown field": `
name: demo
source: {archive: /a.tar.gz}
build: [{command: make}]
validation: {command: t}
surprise: true
`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc), ""); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestLoadAnchorsAtManifestDir(t *testing.T) {
	dir := t.TempDir()
	doc := `
name: demo
source:
  archive: archives/demo.tar.gz
patches:
  - fix.patch
build:
  - command: make
validation:
  command: run-tests
`
	path := filepath.Join(dir, "scenario.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	scenario, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !strings.HasPrefix(scenario.Spec.Source.Archive, dir) {
		t.Errorf("archive not anchored at manifest dir: %s", scenario.Spec.Source.Archive)
	}
	if scenario.Spec.Patches[0] != filepath.Join(dir, "fix.patch") {
		t.Errorf("patch not anchored: %s", scenario.Spec.Patches[0])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing manifest")
	}
}

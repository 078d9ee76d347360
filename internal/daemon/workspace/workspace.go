// Package workspace manages the on-disk directories scenarios are
// built in. Each scenario gets a stable path under the scenarios
// directory so artifacts can be located by scenario id after the run.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Layout inside a workspace.
const (
	sourceDirName = "source"
	prefixDirName = "local-root"
)

// Workspace is an acquired scenario workspace.
type Workspace struct {
	// ScenarioID is the owning scenario.
	ScenarioID string

	// Root is <scenarios-dir>/<scenario-id>.
	Root string

	// SourceDir is where the source archive is extracted.
	SourceDir string

	// Prefix is the local install prefix (local-root).
	Prefix string

	// CreatedAt is when the workspace was acquired.
	CreatedAt time.Time
}

// BinDir returns the executable directory under the install prefix.
func (w *Workspace) BinDir() string {
	return filepath.Join(w.Prefix, "bin")
}

// Manager allocates and releases scenario workspaces.
type Manager struct {
	baseDir string
	logger  *slog.Logger
}

// NewManager creates a workspace manager rooted at baseDir.
func NewManager(baseDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Path returns the workspace root a scenario would occupy.
func (m *Manager) Path(scenarioID string) string {
	return filepath.Join(m.baseDir, scenarioID)
}

// Acquire creates the workspace for a scenario. A pre-existing
// non-empty directory means stale state from an earlier run; Acquire
// refuses to touch it and fails with an AllocationError so the
// operator can inspect or remove it.
func (m *Manager) Acquire(scenarioID string) (*Workspace, error) {
	if err := validateID(scenarioID); err != nil {
		return nil, &AllocationError{ScenarioID: scenarioID, Reason: err.Error()}
	}

	root := m.Path(scenarioID)
	entries, err := os.ReadDir(root)
	switch {
	case err == nil:
		if len(entries) > 0 {
			return nil, &AllocationError{
				ScenarioID: scenarioID,
				Path:       root,
				Reason:     "workspace directory exists and is not empty",
			}
		}
	case !os.IsNotExist(err):
		return nil, &AllocationError{ScenarioID: scenarioID, Path: root, Reason: err.Error()}
	}

	ws := &Workspace{
		ScenarioID: scenarioID,
		Root:       root,
		SourceDir:  filepath.Join(root, sourceDirName),
		Prefix:     filepath.Join(root, prefixDirName),
		CreatedAt:  time.Now(),
	}

	for _, dir := range []string{ws.SourceDir, ws.BinDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			os.RemoveAll(root)
			return nil, &AllocationError{ScenarioID: scenarioID, Path: root, Reason: err.Error()}
		}
	}

	m.logger.Debug("workspace acquired",
		"scenario", scenarioID,
		"root", root)

	return ws, nil
}

// Release removes the workspace from disk. With retain set the tree is
// kept for inspection and only logged.
func (m *Manager) Release(ws *Workspace, retain bool) error {
	if ws == nil {
		return nil
	}
	if retain {
		m.logger.Info("workspace retained",
			"scenario", ws.ScenarioID,
			"root", ws.Root)
		return nil
	}
	if err := os.RemoveAll(ws.Root); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", ws.Root, err)
	}
	m.logger.Debug("workspace released",
		"scenario", ws.ScenarioID,
		"root", ws.Root)
	return nil
}

// validateID rejects scenario ids that would escape the base directory.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("scenario id is empty")
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return fmt.Errorf("scenario id %q contains path elements", id)
	}
	return nil
}

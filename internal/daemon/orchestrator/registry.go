// internal/daemon/orchestrator/registry.go
package orchestrator

import "sync"

// Registry enforces single-flight execution per scenario. The slot is
// claimed explicitly at submission time rather than inferred from the
// workspace directory, so a stale directory can never masquerade as a
// running scenario.
type Registry struct {
	mu     sync.Mutex
	active map[string]string // scenario id -> run id
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]string),
	}
}

// Begin claims the scenario for a run. Claiming is idempotent for the
// same run; a different run gets ErrAlreadyRunning immediately.
func (r *Registry) Begin(scenarioID, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, exists := r.active[scenarioID]; exists {
		if holder == runID {
			return nil
		}
		return ErrAlreadyRunning
	}
	r.active[scenarioID] = runID
	return nil
}

// End releases the scenario slot if it is held by the given run.
func (r *Registry) End(scenarioID, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[scenarioID] == runID {
		delete(r.active, scenarioID)
	}
}

// EndRun releases whatever scenario slot the run holds, if any. Paths
// that drop a run without executing it use this, since they may no
// longer know which scenario the run had claimed.
func (r *Registry) EndRun(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for scenarioID, holder := range r.active {
		if holder == runID {
			delete(r.active, scenarioID)
			return
		}
	}
}

// Active returns the run currently holding the scenario, if any.
func (r *Registry) Active(scenarioID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	runID, exists := r.active[scenarioID]
	return runID, exists
}

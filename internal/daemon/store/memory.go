// internal/daemon/store/memory.go
package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-memory maps. Used by tests and
// ephemeral daemons; semantics match BoltStore including generation
// checks and watch replay.
type MemoryStore struct {
	mu        sync.RWMutex
	scenarios map[string]*Scenario
	runs      map[string]*Run
	watchers  map[string][]WatchHandler
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scenarios: make(map[string]*Scenario),
		runs:      make(map[string]*Run),
		watchers:  make(map[string][]WatchHandler),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) notify(resourceType, eventType string, resource interface{}) {
	s.mu.RLock()
	handlers := s.watchers[resourceType]
	s.mu.RUnlock()

	for _, h := range handlers {
		go h(eventType, resource)
	}
}

// CreateScenario creates a new scenario.
func (s *MemoryStore) CreateScenario(ctx context.Context, scenario *Scenario) error {
	s.mu.Lock()
	if _, exists := s.scenarios[scenario.Metadata.Name]; exists {
		s.mu.Unlock()
		return &AlreadyExistsError{Resource: "scenario", Name: scenario.Metadata.Name}
	}

	now := time.Now()
	scenario.Metadata.Generation = 1
	scenario.Metadata.CreatedAt = now
	scenario.Metadata.UpdatedAt = now

	stored := *scenario
	s.scenarios[scenario.Metadata.Name] = &stored
	s.mu.Unlock()

	s.notify(ResourceScenarios, "ADDED", scenario)
	return nil
}

// GetScenario retrieves a scenario by name.
func (s *MemoryStore) GetScenario(ctx context.Context, name string) (*Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scenario, exists := s.scenarios[name]
	if !exists {
		return nil, &NotFoundError{Resource: "scenario", Name: name}
	}
	copy := *scenario
	return &copy, nil
}

// DeleteScenario deletes a scenario.
func (s *MemoryStore) DeleteScenario(ctx context.Context, name string) error {
	s.mu.Lock()
	scenario, exists := s.scenarios[name]
	if !exists {
		s.mu.Unlock()
		return &NotFoundError{Resource: "scenario", Name: name}
	}
	delete(s.scenarios, name)
	s.mu.Unlock()

	s.notify(ResourceScenarios, "DELETED", scenario)
	return nil
}

// ListScenarios returns all scenarios.
func (s *MemoryStore) ListScenarios(ctx context.Context) ([]*Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scenarios := make([]*Scenario, 0, len(s.scenarios))
	for _, scenario := range s.scenarios {
		copy := *scenario
		scenarios = append(scenarios, &copy)
	}
	return scenarios, nil
}

// CreateRun creates a new run.
func (s *MemoryStore) CreateRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	if _, exists := s.runs[run.Metadata.Name]; exists {
		s.mu.Unlock()
		return &AlreadyExistsError{Resource: "run", Name: run.Metadata.Name}
	}

	now := time.Now()
	run.Metadata.Generation = 1
	run.Metadata.CreatedAt = now
	run.Metadata.UpdatedAt = now

	stored := *run
	s.runs[run.Metadata.Name] = &stored
	s.mu.Unlock()

	s.notify(ResourceRuns, "ADDED", run)
	return nil
}

// GetRun retrieves a run by name.
func (s *MemoryStore) GetRun(ctx context.Context, name string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[name]
	if !exists {
		return nil, &NotFoundError{Resource: "run", Name: name}
	}
	copy := *run
	return &copy, nil
}

// UpdateRun updates an existing run.
func (s *MemoryStore) UpdateRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	old, exists := s.runs[run.Metadata.Name]
	if !exists {
		s.mu.Unlock()
		return &NotFoundError{Resource: "run", Name: run.Metadata.Name}
	}

	if old.Metadata.Generation != run.Metadata.Generation {
		s.mu.Unlock()
		return &ConflictError{
			Resource: "run",
			Name:     run.Metadata.Name,
			Message:  "generation mismatch",
		}
	}

	run.Metadata.Generation++
	run.Metadata.UpdatedAt = time.Now()

	stored := *run
	s.runs[run.Metadata.Name] = &stored
	s.mu.Unlock()

	s.notify(ResourceRuns, "MODIFIED", run)
	return nil
}

// DeleteRun deletes a run.
func (s *MemoryStore) DeleteRun(ctx context.Context, name string) error {
	s.mu.Lock()
	run, exists := s.runs[name]
	if !exists {
		s.mu.Unlock()
		return &NotFoundError{Resource: "run", Name: name}
	}
	delete(s.runs, name)
	s.mu.Unlock()

	s.notify(ResourceRuns, "DELETED", run)
	return nil
}

// ListRuns returns all runs.
func (s *MemoryStore) ListRuns(ctx context.Context) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		copy := *run
		runs = append(runs, &copy)
	}
	return runs, nil
}

// Watch registers a handler for resource changes.
func (s *MemoryStore) Watch(ctx context.Context, resourceType string, handler WatchHandler) error {
	s.mu.Lock()
	s.watchers[resourceType] = append(s.watchers[resourceType], handler)
	s.mu.Unlock()

	switch resourceType {
	case ResourceScenarios:
		scenarios, err := s.ListScenarios(ctx)
		if err != nil {
			return err
		}
		for _, sc := range scenarios {
			handler("ADDED", sc)
		}
	case ResourceRuns:
		runs, err := s.ListRuns(ctx)
		if err != nil {
			return err
		}
		for _, r := range runs {
			handler("ADDED", r)
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

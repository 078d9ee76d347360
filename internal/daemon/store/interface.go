// internal/daemon/store/interface.go
package store

import (
	"context"

	"github.com/squareslab/bugzood/internal/daemon/types"
)

// Re-export types for convenience.
type (
	Scenario = types.Scenario
	Run      = types.Run
)

// Resource type names used for watches.
const (
	ResourceScenarios = "scenarios"
	ResourceRuns      = "runs"
)

// WatchHandler is called when a resource changes.
type WatchHandler func(eventType string, resource interface{})

// Store defines the interface for resource persistence.
type Store interface {
	// Scenario operations. Scenario specs are immutable: there is no
	// update, only create and delete.
	CreateScenario(ctx context.Context, scenario *Scenario) error
	GetScenario(ctx context.Context, name string) (*Scenario, error)
	DeleteScenario(ctx context.Context, name string) error
	ListScenarios(ctx context.Context) ([]*Scenario, error)

	// Run operations.
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, name string) (*Run, error)
	UpdateRun(ctx context.Context, run *Run) error
	DeleteRun(ctx context.Context, name string) error
	ListRuns(ctx context.Context) ([]*Run, error)

	// Watch watches for resource changes. Existing resources are
	// replayed as ADDED events before live events flow.
	Watch(ctx context.Context, resourceType string, handler WatchHandler) error

	// Close closes the store.
	Close() error
}

// internal/daemon/workspace/errors.go
package workspace

import "fmt"

// AllocationError is returned when a workspace cannot be acquired.
type AllocationError struct {
	ScenarioID string
	Path       string
	Reason     string
}

func (e *AllocationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("cannot allocate workspace for %q: %s", e.ScenarioID, e.Reason)
	}
	return fmt.Sprintf("cannot allocate workspace for %q at %s: %s", e.ScenarioID, e.Path, e.Reason)
}

// IsAllocation returns true if err is an AllocationError.
func IsAllocation(err error) bool {
	_, ok := err.(*AllocationError)
	return ok
}

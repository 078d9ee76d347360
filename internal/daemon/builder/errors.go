// internal/daemon/builder/errors.go
package builder

import (
	"fmt"

	"github.com/squareslab/bugzood/internal/daemon/types"
)

// StepError is returned when a build step fails.
type StepError struct {
	Step  types.BuildStep
	Index int
	Err   error
}

func (e *StepError) Error() string {
	name := e.Step.Name
	if name == "" {
		name = e.Step.Command
	}
	return fmt.Sprintf("build step %d (%s, role %s) failed: %v", e.Index, name, e.Step.Role, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

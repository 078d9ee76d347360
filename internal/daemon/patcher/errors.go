// internal/daemon/patcher/errors.go
package patcher

import "fmt"

// PatchError is returned when a patch in the sequence fails to apply.
// Index is the zero-based position of the failing patch; patches after
// it were not attempted.
type PatchError struct {
	Index  int
	Patch  string
	Reason string
}

func (e *PatchError) Error() string {
	return fmt.Sprintf("patch %d (%s) failed to apply: %s", e.Index, e.Patch, e.Reason)
}

// IsPatch returns true if err is a PatchError.
func IsPatch(err error) bool {
	_, ok := err.(*PatchError)
	return ok
}

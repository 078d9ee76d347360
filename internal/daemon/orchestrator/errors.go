// internal/daemon/orchestrator/errors.go
package orchestrator

import "errors"

// ErrAlreadyRunning is returned when a scenario already has a run in
// flight. The caller gets the rejection immediately; requests are
// never silently queued.
var ErrAlreadyRunning = errors.New("scenario already has a run in flight")

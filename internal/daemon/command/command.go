// Package command runs external processes for the daemon. Every
// subprocess the engine launches (archive extraction, patching, build
// steps, validation) goes through Runner so that working directory,
// environment merging, timeout enforcement, and output capture behave
// identically everywhere.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// DefaultOutputLimit caps captured output per stream.
const DefaultOutputLimit = 1 << 20 // 1 MiB

// ErrEmptyCommand is returned when a request has no command.
var ErrEmptyCommand = errors.New("empty command")

// Request describes a single subprocess invocation.
type Request struct {
	// Command is the executable to run.
	Command string

	// Args are passed to the command verbatim.
	Args []string

	// Dir is the working directory. Empty inherits the daemon's.
	Dir string

	// Env is merged over the daemon's environment; entries here win.
	Env map[string]string

	// ExtraPath, when set, is prepended to PATH for the child.
	ExtraPath string

	// Timeout bounds the run. Zero means no timeout. On expiry the
	// whole process group is killed.
	Timeout time.Duration

	// OutputLimit overrides the runner's per-stream capture cap.
	OutputLimit int
}

// Result is the outcome of a finished subprocess.
type Result struct {
	// ExitCode is the process exit code, or -1 if the process was
	// killed before exiting on its own.
	ExitCode int

	Stdout   string
	Stderr   string
	Duration time.Duration

	// TimedOut is true when the timeout expired and the process group
	// was killed.
	TimedOut bool

	// Truncated is true when either stream hit the capture cap.
	Truncated bool
}

// Runner executes subprocess requests.
type Runner struct {
	outputLimit int
	logger      *slog.Logger
}

// Config configures a Runner.
type Config struct {
	// OutputLimit is the per-stream capture cap in bytes.
	OutputLimit int

	// Logger for logging subprocess lifecycle.
	Logger *slog.Logger
}

// NewRunner creates a new subprocess runner.
func NewRunner(config Config) *Runner {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := config.OutputLimit
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	return &Runner{
		outputLimit: limit,
		logger:      logger,
	}
}

// Run executes the request and waits for it to finish. A non-zero exit
// code is reported in the Result, not as an error; errors are reserved
// for processes that could not be run at all.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Command == "" {
		return nil, ErrEmptyCommand
	}

	limit := req.OutputLimit
	if limit <= 0 {
		limit = r.outputLimit
	}

	cmd := exec.Command(req.Command, req.Args...)
	cmd.Dir = req.Dir

	// Merge environment: daemon env first, request overrides after so
	// they win. PATH prepend goes last so it beats an Env entry too.
	env := os.Environ()
	for k, v := range req.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	if req.ExtraPath != "" {
		env = append(env, fmt.Sprintf("PATH=%s:%s", req.ExtraPath, envLookup(env, "PATH")))
	}
	cmd.Env = env

	stdout := newCapBuffer(limit)
	stderr := newCapBuffer(limit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// Own process group so a timeout kill reaches children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", req.Command, err)
	}
	pgid := cmd.Process.Pid

	r.logger.Debug("subprocess started",
		"command", req.Command,
		"pid", pgid,
		"dir", req.Dir)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var timeoutCh <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	result := &Result{}
	var waitErr error

	select {
	case waitErr = <-done:
	case <-timeoutCh:
		result.TimedOut = true
		killGroup(pgid)
		waitErr = <-done
	case <-ctx.Done():
		killGroup(pgid)
		waitErr = <-done
		result.Duration = time.Since(start)
		result.Stdout = stdout.String()
		result.Stderr = stderr.String()
		result.Truncated = stdout.Truncated() || stderr.Truncated()
		result.ExitCode = -1
		return result, ctx.Err()
	}

	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Truncated = stdout.Truncated() || stderr.Truncated()
	result.ExitCode = exitCode(waitErr, result.TimedOut)

	r.logger.Debug("subprocess finished",
		"command", req.Command,
		"exitCode", result.ExitCode,
		"timedOut", result.TimedOut,
		"duration", result.Duration)

	return result, nil
}

// killGroup kills the whole process group.
func killGroup(pgid int) {
	syscall.Kill(-pgid, syscall.SIGKILL)
}

// exitCode extracts the exit code from a Wait error.
func exitCode(err error, killed bool) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && !killed {
		return exitErr.ExitCode()
	}
	return -1
}

// envLookup returns the last value of key in an environ-style slice.
func envLookup(env []string, key string) string {
	prefix := key + "="
	value := ""
	for _, kv := range env {
		if len(kv) > len(prefix) && kv[:len(prefix)] == prefix {
			value = kv[len(prefix):]
		}
	}
	return value
}

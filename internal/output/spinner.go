// internal/output/spinner.go
package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// StatusSpinner displays an animated spinner with a status message,
// used while waiting on a run. Thread-safe for concurrent updates.
type StatusSpinner struct {
	out      io.Writer
	frameIdx int
	message  string
	stop     chan struct{}
	done     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewStatusSpinner creates a new StatusSpinner writing to stderr.
func NewStatusSpinner() *StatusSpinner {
	return &StatusSpinner{out: os.Stderr}
}

// Start begins the spinner animation with the given message.
func (s *StatusSpinner) Start(message string) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.message = message
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		defer close(s.done)

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.render()
			}
		}
	}()
}

// Update changes the spinner message.
func (s *StatusSpinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// Stop halts the animation and clears the spinner line.
func (s *StatusSpinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	<-s.done
	fmt.Fprint(s.out, "\r\033[K")
}

func (s *StatusSpinner) render() {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := spinnerFrames[s.frameIdx%len(spinnerFrames)]
	s.frameIdx++
	fmt.Fprintf(s.out, "\r\033[K%s %s", frame, s.message)
}

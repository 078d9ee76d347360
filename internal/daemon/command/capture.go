// internal/daemon/command/capture.go
package command

import (
	"bytes"
	"sync"
)

// capBuffer is a write-capped output buffer. Writes past the cap are
// counted but discarded, keeping the head of the stream. It is safe
// for concurrent use since stdout and stderr pipes write from separate
// goroutines inside os/exec.
type capBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCapBuffer(limit int) *capBuffer {
	return &capBuffer{limit: limit}
}

// Write never fails; the subprocess should not die because its output
// was chatty.
func (b *capBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	remain := b.limit - b.buf.Len()
	if remain <= 0 {
		if n > 0 {
			b.truncated = true
		}
		return n, nil
	}
	if n > remain {
		p = p[:remain]
		b.truncated = true
	}
	b.buf.Write(p)
	return n, nil
}

func (b *capBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *capBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

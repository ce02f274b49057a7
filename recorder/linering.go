package recorder

import (
	"strings"
	"sync"
)

// LineRing keeps the last N lines written to it. It is safe for concurrent use.
type LineRing struct {
	mu      sync.RWMutex
	lines   []string
	head    int
	partial string
}

// NewLineRing creates a ring holding up to capacity lines (50 when capacity < 1).
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{lines: make([]string, capacity)}
}

// Write splits p into lines. An unterminated tail is held until the next
// write completes it.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.partial + string(p)
	r.partial = ""
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			break
		}
		r.push(strings.TrimRight(s[:i], "\r"))
		s = s[i+1:]
	}
	r.partial = s
	return len(p), nil
}

// push must be called with r.mu held.
func (r *LineRing) push(line string) {
	if line == "" {
		return
	}
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
}

// LastN returns up to n most recent lines, oldest first. A pending
// unterminated line counts as the newest.
func (r *LineRing) LastN(n int) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	size := len(r.lines)
	ordered := make([]string, 0, size+1)
	for i := 0; i < size; i++ {
		if line := r.lines[(r.head+i)%size]; line != "" {
			ordered = append(ordered, line)
		}
	}
	if r.partial != "" {
		ordered = append(ordered, strings.TrimRight(r.partial, "\r"))
	}

	if n < 0 || len(ordered) <= n {
		return ordered
	}
	return ordered[len(ordered)-n:]
}

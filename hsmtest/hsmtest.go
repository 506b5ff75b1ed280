// Package hsmtest provides test scaffolding for machines built with this
// package: a recording trace sink and an async-settle helper, in the
// spirit of the teacher's test_helpers.go mock observer adapted to this
// module's tick-driven machine.
package hsmtest

import (
	"sync"
	"testing"
	"time"
)

// Recorder is a trace sink that captures every emitted line for test
// assertions, guarded the way the teacher's TestObserver guards its
// captured-event slices.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Emit implements hsm.TraceSink.
func (r *Recorder) Emit(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

// Lines returns a snapshot of every line recorded so far.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

// Contains reports whether any recorded line equals want.
func (r *Recorder) Contains(want string) bool {
	for _, line := range r.Lines() {
		if line == want {
			return true
		}
	}
	return false
}

// Reset clears all recorded lines.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
}

// Eventually polls cond every poll interval until it returns true or
// timeout elapses, failing t if it never does. Tests against a running
// Machine need this rather than a fixed sleep because the ticker
// goroutine settles on its own schedule (PollInterval plus however long
// the current transition chain takes).
func Eventually(t *testing.T, timeout, poll time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition was not met within %s", timeout)
		}
		time.Sleep(poll)
	}
}

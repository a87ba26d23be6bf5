// Package transcript merges incrementally recognized speech into an editable input buffer.
package transcript

import (
	"strings"
	"sync"
)

// Reconciler owns the input buffer and the last transcript it merged.
// Thread-safe for concurrent access.
//
// The buffer is either pure typing, pure reconciled speech, or previously
// confirmed content followed by newly appended speech. The last-seen
// transcript is never shown; it is only used to compute the next delta.
type Reconciler struct {
	mu       sync.RWMutex
	buffer   string
	lastSeen string
}

// NewReconciler creates an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Buffer returns the current input buffer.
func (r *Reconciler) Buffer() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buffer
}

// LastSeen returns the most recently processed transcript.
func (r *Reconciler) LastSeen() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSeen
}

// SetBuffer replaces the buffer with user-typed content.
// The last-seen transcript is left untouched.
func (r *Reconciler) SetBuffer(value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = value
}

// ApplyIncoming merges a recognized transcript into the buffer.
// Returns true if the buffer changed.
//
// Rules:
//   - blank input or a repeat of the last-seen transcript is a no-op
//   - an empty buffer is replaced by the transcript
//   - a refinement of the last-seen transcript appends only the new suffix
//   - anything else is appended as a new utterance, separated by one space
func (r *Reconciler) ApplyIncoming(incoming string) bool {
	trimmed := strings.TrimSpace(incoming)
	if trimmed == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if trimmed == r.lastSeen {
		return false
	}

	if strings.TrimSpace(r.buffer) == "" {
		r.buffer = trimmed
		r.lastSeen = trimmed
		return true
	}

	addition := trimmed
	if r.lastSeen != "" && strings.HasPrefix(trimmed, r.lastSeen) {
		addition = strings.TrimLeft(trimmed[len(r.lastSeen):], " \t\r\n")
	}

	if addition == "" {
		r.lastSeen = trimmed
		return false
	}

	if !strings.HasSuffix(r.buffer, " ") && !strings.HasPrefix(addition, " ") {
		r.buffer += " "
	}
	r.buffer += addition
	r.lastSeen = trimmed
	return true
}

// Reset clears the buffer and the last-seen transcript in one step.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = ""
	r.lastSeen = ""
}

// ResetLastSeen forgets the last merged transcript but keeps the buffer.
// Used once a recognition session's text has been committed.
func (r *Reconciler) ResetLastSeen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeen = ""
}

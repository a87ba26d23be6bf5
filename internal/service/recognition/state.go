// Package recognition drives one speech recognizer at a time for an assistant
// session and folds its events into the input buffer.
package recognition

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of the recognizer.
type State int

const (
	// StateIdle - No recognition session is active.
	StateIdle State = iota
	// StateListening - A recognizer is capturing audio and may emit results.
	StateListening
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

var (
	ErrUnsupported         = errors.New("speech recognition not supported")
	ErrAlreadyListening    = errors.New("recognition already listening")
	ErrUnsupportedLanguage = errors.New("unsupported recognition language")
)

// Lifecycle tracks the Idle/Listening state of one recognizer slot.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE ──Begin()──→ LISTENING ──Finish()──→ IDLE
//
// Only one utterance may be listening at a time; Begin while listening fails.
type Lifecycle struct {
	mu          sync.RWMutex
	utteranceID string
	state       State
}

// NewLifecycle creates a lifecycle in IDLE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateIdle}
}

// UtteranceID returns the ID of the current or last utterance.
func (l *Lifecycle) UtteranceID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.utteranceID
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsListening returns true while a recognizer is active.
func (l *Lifecycle) IsListening() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == StateListening
}

// Begin transitions IDLE → LISTENING for a new utterance.
func (l *Lifecycle) Begin(utteranceID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateListening {
		return ErrAlreadyListening
	}
	l.utteranceID = utteranceID
	l.state = StateListening
	return nil
}

// Finish transitions back to IDLE. Idempotent.
// Returns true if the lifecycle was listening.
func (l *Lifecycle) Finish() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	was := l.state == StateListening
	l.state = StateIdle
	return was
}

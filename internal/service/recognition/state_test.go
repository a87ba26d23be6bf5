package recognition

import (
	"testing"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle()

	if lc.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", lc.State())
	}
	if lc.IsListening() {
		t.Error("expected IsListening to be false")
	}
}

func TestLifecycle_BeginAndFinish(t *testing.T) {
	lc := NewLifecycle()

	if err := lc.Begin("utt-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lc.State() != StateListening {
		t.Errorf("expected StateListening, got %v", lc.State())
	}
	if lc.UtteranceID() != "utt-1" {
		t.Errorf("expected utt-1, got %s", lc.UtteranceID())
	}

	if !lc.Finish() {
		t.Error("expected Finish to report it was listening")
	}
	if lc.Finish() {
		t.Error("expected second Finish to report idle")
	}
	if lc.UtteranceID() != "utt-1" {
		t.Errorf("expected last utterance id kept, got %s", lc.UtteranceID())
	}
}

func TestLifecycle_BeginWhileListening(t *testing.T) {
	lc := NewLifecycle()
	lc.Begin("utt-1")

	if err := lc.Begin("utt-2"); err != ErrAlreadyListening {
		t.Errorf("expected ErrAlreadyListening, got %v", err)
	}
	if lc.UtteranceID() != "utt-1" {
		t.Errorf("expected utt-1 kept, got %s", lc.UtteranceID())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateIdle, "IDLE"},
		{StateListening, "LISTENING"},
		{State(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.expected)
		}
	}
}

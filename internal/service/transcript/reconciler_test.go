package transcript

import "testing"

func TestReconciler_DisjointUtterancesAppendWithSingleSpace(t *testing.T) {
	r := NewReconciler()

	r.ApplyIncoming("red shoes")
	r.ApplyIncoming("under fifty dollars")

	if got := r.Buffer(); got != "red shoes under fifty dollars" {
		t.Errorf("expected 'red shoes under fifty dollars', got %q", got)
	}
}

func TestReconciler_RefinementAppendsSuffixOnce(t *testing.T) {
	r := NewReconciler()

	r.ApplyIncoming("latest")
	r.ApplyIncoming("latest fashion")
	r.ApplyIncoming("latest fashion trends")

	if got := r.Buffer(); got != "latest fashion trends" {
		t.Errorf("expected 'latest fashion trends', got %q", got)
	}
	if got := r.LastSeen(); got != "latest fashion trends" {
		t.Errorf("expected last seen to track latest transcript, got %q", got)
	}
}

func TestReconciler_PrefixPlusSuffix(t *testing.T) {
	r := NewReconciler()

	r.ApplyIncoming("a")
	r.ApplyIncoming("a c")

	if got := r.Buffer(); got != "a c" {
		t.Errorf("expected 'a c', got %q", got)
	}
}

func TestReconciler_DuplicateFinalIsIdempotent(t *testing.T) {
	r := NewReconciler()

	r.ApplyIncoming("current state of retail")
	before := r.Buffer()

	if changed := r.ApplyIncoming("current state of retail"); changed {
		t.Error("expected duplicate transcript to report no change")
	}
	if r.Buffer() != before {
		t.Errorf("expected buffer unchanged, got %q", r.Buffer())
	}
}

func TestReconciler_BlankInputIsNoop(t *testing.T) {
	r := NewReconciler()
	r.SetBuffer("typed")

	for _, in := range []string{"", "   ", "\n\t"} {
		if r.ApplyIncoming(in) {
			t.Errorf("expected no-op for %q", in)
		}
	}
	if r.Buffer() != "typed" {
		t.Errorf("expected buffer 'typed', got %q", r.Buffer())
	}
	if r.LastSeen() != "" {
		t.Errorf("expected empty last seen, got %q", r.LastSeen())
	}
}

func TestReconciler_PreservesTypedContent(t *testing.T) {
	r := NewReconciler()
	r.SetBuffer("news about")

	r.ApplyIncoming("influential")
	r.ApplyIncoming("influential celebrities")

	if got := r.Buffer(); got != "news about influential celebrities" {
		t.Errorf("expected typed content preserved, got %q", got)
	}
}

func TestReconciler_NoExtraSpaceWhenBufferEndsWithSpace(t *testing.T) {
	r := NewReconciler()
	r.SetBuffer("shoes ")

	r.ApplyIncoming("for running")

	if got := r.Buffer(); got != "shoes for running" {
		t.Errorf("expected 'shoes for running', got %q", got)
	}
}

func TestReconciler_EmptyBufferReplacedByTranscript(t *testing.T) {
	r := NewReconciler()
	r.SetBuffer("   ")

	r.ApplyIncoming("  hello  ")

	if got := r.Buffer(); got != "hello" {
		t.Errorf("expected 'hello', got %q", got)
	}
}

func TestReconciler_SameTextAfterPrefixOnlyUpdatesLastSeen(t *testing.T) {
	r := NewReconciler()
	r.ApplyIncoming("hello")
	r.SetBuffer("hello world")

	// Trailing whitespace is trimmed, so this equals last seen.
	if r.ApplyIncoming("hello   ") {
		t.Error("expected no change")
	}
	if r.Buffer() != "hello world" {
		t.Errorf("expected buffer unchanged, got %q", r.Buffer())
	}
}

func TestReconciler_Reset(t *testing.T) {
	r := NewReconciler()
	r.ApplyIncoming("something")
	r.SetBuffer("something typed")

	r.Reset()

	if r.Buffer() != "" {
		t.Errorf("expected empty buffer, got %q", r.Buffer())
	}
	if r.LastSeen() != "" {
		t.Errorf("expected empty last seen, got %q", r.LastSeen())
	}

	// After reset the same transcript is merged again.
	if !r.ApplyIncoming("something") {
		t.Error("expected transcript to apply after reset")
	}
}

func TestReconciler_ResetLastSeenKeepsBuffer(t *testing.T) {
	r := NewReconciler()
	r.ApplyIncoming("shoes")

	r.ResetLastSeen()

	if r.Buffer() != "shoes" {
		t.Errorf("expected buffer kept, got %q", r.Buffer())
	}
	r.ApplyIncoming("shoes")
	if r.Buffer() != "shoes shoes" {
		t.Errorf("expected new utterance appended, got %q", r.Buffer())
	}
}

package stt

import "testing"

func TestJoinTranscripts(t *testing.T) {
	results := []Result{
		{Alternatives: []Alternative{{Transcript: "latest fashion"}}, IsFinal: true},
		{Alternatives: []Alternative{{Transcript: " trends "}}},
		{},
	}

	if got := JoinTranscripts(results); got != "latest fashion  trends" {
		t.Errorf("unexpected joined transcript %q", got)
	}
	if got := JoinFinal(results); got != "latest fashion" {
		t.Errorf("expected only final text, got %q", got)
	}
}

func TestChannelCallback_PreservesOrderAndGeneration(t *testing.T) {
	ch := make(chan Event, 4)
	done := make(chan struct{})
	cb := NewChannelCallback(7, ch, done)

	cb.OnStart()
	cb.OnResult([]Result{{Alternatives: []Alternative{{Transcript: "a"}}}})
	cb.OnError(CodeNetwork)
	cb.OnEnd()

	want := []EventType{EventStart, EventResult, EventError, EventEnd}
	for i, w := range want {
		ev := <-ch
		if ev.Type != w {
			t.Errorf("event %d: expected %s, got %s", i, w, ev.Type)
		}
		if ev.Generation != 7 {
			t.Errorf("event %d: expected generation 7, got %d", i, ev.Generation)
		}
	}
}

func TestChannelCallback_DoneUnblocks(t *testing.T) {
	ch := make(chan Event)
	done := make(chan struct{})
	close(done)

	NewChannelCallback(1, ch, done).OnEnd()
}

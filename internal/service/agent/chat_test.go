package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"voice-search-assistant/internal/models"
)

type scriptedStreamer struct {
	events  []StreamEvent
	err     error
	history []models.Message
}

func (s *scriptedStreamer) Stream(ctx context.Context, chatID string, messages []models.Message, handle func(StreamEvent) error) error {
	s.history = messages
	for _, ev := range s.events {
		if err := handle(ev); err != nil {
			return err
		}
	}
	return s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.MessageCompleted
}

func (p *recordingPublisher) PublishMessage(ctx context.Context, ev models.MessageCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func TestChat_SendStreamsTextAndTool(t *testing.T) {
	streamer := &scriptedStreamer{events: []StreamEvent{
		{Type: EventStart, MessageID: "a1"},
		{Type: EventTextStart, ID: "t1"},
		{Type: EventTextDelta, ID: "t1", Delta: "Here are "},
		{Type: EventTextDelta, ID: "t1", Delta: "some results"},
		{Type: EventTextEnd, ID: "t1"},
		{Type: EventToolInputStart, ToolCallID: "call-1", ToolName: ToolDisplayItems},
		{Type: EventToolInputAvailable, ToolCallID: "call-1", ToolName: ToolDisplayItems, Input: json.RawMessage(`{"objectIDs":["a","b"]}`)},
		{Type: EventFinish},
	}}
	pub := &recordingPublisher{}
	chat := NewChat("s1", streamer, NewTools(&fakeFetcher{}, "articles"), pub)

	var statuses []Status
	chat.OnChange(func() { statuses = append(statuses, chat.Status()) })

	var outputs []models.ToolOutput
	if err := chat.Send(context.Background(), "latest trends", func(o models.ToolOutput) { outputs = append(outputs, o) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := chat.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != models.RoleUser || msgs[0].Text() != "latest trends" {
		t.Errorf("unexpected user message: %+v", msgs[0])
	}
	a := msgs[1]
	if a.ID != "a1" || a.Role != models.RoleAssistant {
		t.Errorf("unexpected assistant message: %+v", a)
	}
	if a.Text() != "Here are some results" {
		t.Errorf("expected streamed text, got %q", a.Text())
	}
	if len(a.Parts) != 2 || a.Parts[1].State != models.ToolStateOutputAvailable || a.Parts[1].ToolName() != ToolDisplayItems {
		t.Fatalf("expected resolved tool part, got %+v", a.Parts)
	}

	if len(outputs) != 1 || outputs[0].ToolCallID != "call-1" {
		t.Fatalf("expected one tool output, got %+v", outputs)
	}
	if chat.Status() != StatusReady {
		t.Errorf("expected ready, got %s", chat.Status())
	}
	if statuses[0] != StatusSubmitted {
		t.Errorf("expected submitted first, got %v", statuses)
	}
	if len(pub.events) != 2 {
		t.Errorf("expected user and assistant published, got %d", len(pub.events))
	}
	if len(streamer.history) != 1 {
		t.Errorf("expected history with the user message, got %d", len(streamer.history))
	}
}

func TestChat_UnknownToolBecomesOutputError(t *testing.T) {
	streamer := &scriptedStreamer{events: []StreamEvent{
		{Type: EventToolInputAvailable, ToolCallID: "c", ToolName: "weather", Input: json.RawMessage(`{}`)},
	}}
	chat := NewChat("s1", streamer, NewTools(&fakeFetcher{}, "articles"), nil)

	called := false
	if err := chat.Send(context.Background(), "q", func(models.ToolOutput) { called = true }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Error("tool output callback must not fire on error")
	}
	part := chat.Messages()[1].Parts[0]
	if part.State != models.ToolStateOutputError || part.ErrorText == "" {
		t.Errorf("expected output-error part, got %+v", part)
	}
}

func TestChat_SendFailureSetsErrorStatus(t *testing.T) {
	boom := errors.New("agent down")
	chat := NewChat("s1", &scriptedStreamer{err: boom}, NewTools(&fakeFetcher{}, "articles"), nil)

	err := chat.Send(context.Background(), "q", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if chat.Status() != StatusError || !errors.Is(chat.Err(), boom) {
		t.Errorf("expected error status, got %s / %v", chat.Status(), chat.Err())
	}
	if len(chat.Messages()) != 1 {
		t.Errorf("expected user message kept, got %d messages", len(chat.Messages()))
	}
}

func TestChat_Replay(t *testing.T) {
	pub := &recordingPublisher{}
	chat := NewChat("s1", &scriptedStreamer{}, NewTools(&fakeFetcher{}, "articles"), pub)
	cached := models.ToolOutput{
		ToolName:   ToolDisplayItems,
		ToolCallID: "original",
		Output:     json.RawMessage(`{"response":[]}`),
	}

	chat.Replay(context.Background(), "retail", cached)
	chat.Replay(context.Background(), "retail", cached)

	msgs := chat.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Text() != "retail" || msgs[1].Role != models.RoleAssistant {
		t.Errorf("unexpected replay pair: %+v", msgs[:2])
	}
	p1, p2 := msgs[1].Parts[0], msgs[3].Parts[0]
	if p1.State != models.ToolStateOutputAvailable || string(p1.Output) != `{"response":[]}` {
		t.Errorf("expected cached output replayed, got %+v", p1)
	}
	if p1.ToolCallID == "original" || p1.ToolCallID == p2.ToolCallID {
		t.Errorf("expected fresh tool call ids, got %q and %q", p1.ToolCallID, p2.ToolCallID)
	}
	if len(pub.events) != 4 {
		t.Errorf("expected 4 published messages, got %d", len(pub.events))
	}
}

func TestChat_OverSSE(t *testing.T) {
	srv := sseServer(t, []string{
		`{"type":"start","messageId":"m"}`,
		`{"type":"tool-input-available","toolCallId":"c1","toolName":"summary-with-sources","input":{"items":[{"text":"x","objectIds":["a"]}]}}`,
		`{"type":"finish"}`,
	}, nil)
	defer srv.Close()

	chat := NewChat("s1", NewClient(Config{AppID: "app", APIKey: "key", Endpoint: srv.URL}), NewTools(&fakeFetcher{}, "articles"), nil)
	var out models.ToolOutput
	if err := chat.Send(context.Background(), "q", func(o models.ToolOutput) { out = o }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ToolName != ToolSummaryWithSources {
		t.Errorf("expected summary tool output, got %+v", out)
	}
}

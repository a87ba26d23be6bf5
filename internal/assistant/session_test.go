package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"voice-search-assistant/internal/models"
	"voice-search-assistant/internal/service/agent"
	"voice-search-assistant/internal/service/recognition"
	"voice-search-assistant/internal/service/resolver"
	"voice-search-assistant/internal/service/search"
	"voice-search-assistant/internal/service/stt"
	"voice-search-assistant/internal/service/stt/mock"
	"voice-search-assistant/internal/service/suggestion"
)

type stubSearcher struct{}

func (stubSearcher) Query(ctx context.Context, index, query string, hitsPerPage int) (search.ResultSet, error) {
	if query == "" {
		return search.ResultSet{}, nil
	}
	return search.ResultSet{
		Query: query,
		Items: []models.Item{{ObjectID: "1", Title: "First"}, {ObjectID: "2", Title: "Second"}},
	}, nil
}

type stubSuggester struct {
	hits []search.QuerySuggestion
}

func (s stubSuggester) Suggest(ctx context.Context, index, query string, n int) ([]search.QuerySuggestion, error) {
	return s.hits, nil
}

// stubStreamer answers every turn with a display-items tool call.
type stubStreamer struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (s *stubStreamer) Stream(ctx context.Context, chatID string, messages []models.Message, handle func(agent.StreamEvent) error) error {
	s.mu.Lock()
	s.texts = append(s.texts, messages[len(messages)-1].Text())
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return handle(agent.StreamEvent{
		Type:       agent.EventToolInputAvailable,
		ToolCallID: "call",
		ToolName:   agent.ToolDisplayItems,
		Input:      json.RawMessage(`{"objectIDs":["1"]}`),
	})
}

func (s *stubStreamer) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type stubTools struct{}

func (stubTools) Resolve(ctx context.Context, toolName string, input json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{"response":[{"objectID":"1"}]}`), nil
}

type recordingPublisher struct {
	mu          sync.Mutex
	messages    []models.MessageCompleted
	transcripts []models.TranscriptFinal
	submissions []models.SubmissionResolved
}

func (p *recordingPublisher) PublishMessage(ctx context.Context, ev models.MessageCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, ev)
	return nil
}

func (p *recordingPublisher) PublishTranscript(ctx context.Context, ev models.TranscriptFinal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcripts = append(p.transcripts, ev)
	return nil
}

func (p *recordingPublisher) PublishSubmission(ctx context.Context, ev models.SubmissionResolved) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submissions = append(p.submissions, ev)
	return nil
}

func (p *recordingPublisher) counts() (int, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages), len(p.transcripts), len(p.submissions)
}

type fixture struct {
	session  *Session
	streamer *stubStreamer
	store    *suggestion.MemoryStore
	pub      *recordingPublisher
}

func newFixture(t *testing.T, mode recognition.Mode, factory stt.Factory) *fixture {
	t.Helper()
	return newFixtureWith(t, mode, factory, nil)
}

// newFixtureWith lets a test adjust the session config and collaborators
// before the session starts.
func newFixtureWith(t *testing.T, mode recognition.Mode, factory stt.Factory, tweak func(*Config, *Deps)) *fixture {
	t.Helper()
	f := &fixture{
		streamer: &stubStreamer{},
		store:    suggestion.NewMemoryStore(),
		pub:      &recordingPublisher{},
	}
	cfg := Config{
		ArticlesIndex:    "articles",
		SuggestionsIndex: "suggestions",
		HitsPerPage:      5,
		SuggestionCount:  5,
		Recognition:      recognition.Config{Mode: mode, Limits: recognition.DefaultLimits()},
		Resolver:         resolver.Config{TopK: 5, DriftTolerance: 1, SearchTimeout: time.Second},
	}
	deps := Deps{
		Searcher:  stubSearcher{},
		Suggester: stubSuggester{hits: []search.QuerySuggestion{{Query: "red shoes"}, {Query: "red dress"}}},
		Streamer:  f.streamer,
		Tools:     stubTools{},
		Store:     f.store,
		Publisher: f.pub,
		STT:       factory,
	}
	if tweak != nil {
		tweak(&cfg, &deps)
	}
	f.session = NewSession("sess-1", cfg, deps)
	t.Cleanup(f.session.Close)
	return f
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func mustState(t *testing.T, s *Session) State {
	t.Helper()
	st, err := s.State()
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return st
}

func TestSession_SetInputRefinesSearch(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, nil)

	if err := f.session.SetInput("red"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "search results", func() bool {
		return mustState(t, f.session).Results.Query == "red"
	})
	if got := mustState(t, f.session).Input; got != "red" {
		t.Errorf("expected input %q, got %q", "red", got)
	}
}

func TestSession_EnterSubmitsAndClears(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, nil)
	_ = f.session.SetInput("  latest trends ")

	submitted, err := f.session.HandleKey(KeyEnter, false)
	if err != nil || !submitted {
		t.Fatalf("expected submission, got %v %v", submitted, err)
	}
	if got := mustState(t, f.session).Input; got != "" {
		t.Errorf("expected input cleared, got %q", got)
	}

	eventually(t, "submission", func() bool { return mustState(t, f.session).LastSubmission != nil })
	st := mustState(t, f.session)
	if st.LastSubmission.Decision != resolver.DecisionMiss {
		t.Errorf("expected miss, got %s", st.LastSubmission.Decision)
	}
	if calls := f.streamer.calls(); len(calls) != 1 || !strings.HasPrefix(calls[0], "latest trends") {
		t.Errorf("expected agent called with trimmed query, got %v", calls)
	}

	sg, err := f.store.Get(context.Background(), "latest trends")
	if err != nil {
		t.Fatalf("expected suggestion stored: %v", err)
	}
	if sg.CachedOutput == nil || len(sg.ResultObjectIDs) != 2 {
		t.Errorf("expected ids and output cached, got %+v", sg)
	}
	eventually(t, "submission event", func() bool {
		_, _, subs := f.pub.counts()
		return subs == 1
	})
}

func TestSession_RepeatedQueryReplaysFromCache(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, nil)

	_ = f.session.Submit("retail")
	eventually(t, "first submission", func() bool { return mustState(t, f.session).LastSubmission != nil })

	_ = f.session.Submit("retail")
	eventually(t, "replay", func() bool {
		last := mustState(t, f.session).LastSubmission
		return last != nil && last.Decision == resolver.DecisionExact
	})

	if calls := f.streamer.calls(); len(calls) != 1 {
		t.Errorf("expected single agent call, got %d", len(calls))
	}
	msgs := mustState(t, f.session).Messages
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[3].Parts[0].State != models.ToolStateOutputAvailable {
		t.Errorf("expected replayed tool output, got %+v", msgs[3].Parts)
	}
}

// slowSearcher answers each query after a per-query latency with IDs
// derived from the query.
type slowSearcher struct {
	latency map[string]time.Duration
}

func (s slowSearcher) Query(ctx context.Context, index, query string, hitsPerPage int) (search.ResultSet, error) {
	select {
	case <-time.After(s.latency[query]):
	case <-ctx.Done():
		return search.ResultSet{}, ctx.Err()
	}
	id := strings.ReplaceAll(query, " ", "-")
	return search.ResultSet{Query: query, Items: []models.Item{{ObjectID: id, Title: query}}}, nil
}

func TestSession_SubmitSupersedesPendingRefinement(t *testing.T) {
	f := newFixtureWith(t, recognition.ModeEvent, nil, func(cfg *Config, deps *Deps) {
		cfg.RefineDebounce = 50 * time.Millisecond
		deps.Searcher = slowSearcher{latency: map[string]time.Duration{
			"red sh": 5 * time.Millisecond,
			"shoes":  120 * time.Millisecond,
		}}
	})

	_ = f.session.SetInput("red sh")
	_ = f.session.Submit("shoes")

	eventually(t, "submission", func() bool { return mustState(t, f.session).LastSubmission != nil })
	last := mustState(t, f.session).LastSubmission
	if !last.SearchMatched || len(last.ObjectIDs) != 1 || last.ObjectIDs[0] != "shoes" {
		t.Fatalf("expected submission resolved against its own results, got %+v", last)
	}

	sg, err := f.store.Get(context.Background(), "shoes")
	if err != nil {
		t.Fatalf("expected suggestion stored: %v", err)
	}
	if len(sg.ResultObjectIDs) != 1 || sg.ResultObjectIDs[0] != "shoes" {
		t.Errorf("expected ids of the submitted query cached, got %v", sg.ResultObjectIDs)
	}

	// The typed refinement never fires after the submission.
	time.Sleep(100 * time.Millisecond)
	if q := mustState(t, f.session).Results.Query; q != "shoes" {
		t.Errorf("expected results for the submitted query, got %q", q)
	}
}

func TestSession_SubmitKeepsQueryInInput(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, nil)
	_ = f.session.Submit("  influential celebrities ")

	if got := mustState(t, f.session).Input; got != "influential celebrities" {
		t.Errorf("expected query in input, got %q", got)
	}
}

func TestSession_ShiftEnterAndOtherKeysDoNothing(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, nil)
	_ = f.session.SetInput("query")

	for _, tc := range []struct {
		key   string
		shift bool
	}{{KeyEnter, true}, {"a", false}} {
		submitted, err := f.session.HandleKey(tc.key, tc.shift)
		if err != nil || submitted {
			t.Errorf("key %q shift=%v: expected no submission", tc.key, tc.shift)
		}
	}
	if got := mustState(t, f.session).Input; got != "query" {
		t.Errorf("expected input kept, got %q", got)
	}
}

func TestSession_EnterOnBlankInputDoesNothing(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, nil)
	_ = f.session.SetInput("   ")

	if submitted, _ := f.session.HandleKey(KeyEnter, false); submitted {
		t.Error("expected blank input not submitted")
	}
}

func TestSession_Clear(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, nil)
	_ = f.session.SetInput("something")
	_ = f.session.Clear()

	if got := mustState(t, f.session).Input; got != "" {
		t.Errorf("expected empty input, got %q", got)
	}
}

func TestSession_UnsupportedRecognition(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, nil)
	st := mustState(t, f.session)

	if st.Supported || !st.MicDisabled {
		t.Errorf("expected mic disabled without recognizer, got %+v", st)
	}
	if st.Warning != "Voice input not supported in this runtime." {
		t.Errorf("unexpected warning %q", st.Warning)
	}
	if err := f.session.ToggleMic(); err != nil {
		t.Errorf("expected toggle to be a no-op, got %v", err)
	}
}

func TestSession_VoiceEndModeAutoSubmits(t *testing.T) {
	utt := &mock.SimulatedUtterance{Partials: []string{"current", "current state"}, Final: "current state of retail", Confidence: 0.9}
	f := newFixture(t, recognition.ModeEnd, mock.Factory(mock.Config{Utterance: utt, Autoplay: true}))
	_ = f.session.SetInput("tell me")

	if err := f.session.ToggleMic(); err != nil {
		t.Fatal(err)
	}

	eventually(t, "auto submission", func() bool { return mustState(t, f.session).LastSubmission != nil })
	st := mustState(t, f.session)
	if st.Input != "tell me current state of retail" {
		t.Errorf("expected merged input, got %q", st.Input)
	}
	if st.Listening || st.MicVariant != MicVariantDefault {
		t.Errorf("expected idle mic, got listening=%v variant=%s", st.Listening, st.MicVariant)
	}
	if st.LastSubmission.Query != "tell me current state of retail" {
		t.Errorf("unexpected submitted query %q", st.LastSubmission.Query)
	}
	eventually(t, "transcript event", func() bool {
		_, transcripts, _ := f.pub.counts()
		return transcripts == 1
	})
}

func TestSession_VoiceEventModeReconciles(t *testing.T) {
	utt := &mock.SimulatedUtterance{Partials: []string{"red", "red shoes"}, Final: "red shoes"}
	f := newFixture(t, recognition.ModeEvent, mock.Factory(mock.Config{Utterance: utt, Autoplay: true}))

	if err := f.session.ToggleMic(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "recognition end", func() bool {
		st := mustState(t, f.session)
		return !st.Listening && st.Input == "red shoes"
	})
	if calls := f.streamer.calls(); len(calls) != 0 {
		t.Errorf("event mode must not auto-submit, got %v", calls)
	}
}

func TestSession_RecognitionErrorDisablesMic(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, mock.Factory(mock.Config{FailWith: stt.CodeAudioCapture}))

	if err := f.session.ToggleMic(); err != nil {
		t.Fatal(err)
	}
	eventually(t, "error state", func() bool { return mustState(t, f.session).MicDisabled })

	st := mustState(t, f.session)
	if st.Error != "audio-capture (speech recognition)" {
		t.Errorf("unexpected error message %q", st.Error)
	}

	if err := f.session.SetLanguage("fr-FR"); err != nil {
		t.Fatal(err)
	}
	st = mustState(t, f.session)
	if st.MicDisabled || st.Language != "fr-FR" {
		t.Errorf("expected language change to clear the error, got %+v", st)
	}
}

func TestSession_SetLanguageRejectsUnknown(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, mock.Factory(mock.DefaultConfig()))
	if err := f.session.SetLanguage("xx-XX"); !errors.Is(err, recognition.ErrUnsupportedLanguage) {
		t.Errorf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestSession_Suggestions(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, nil)
	_ = f.session.SetInput("red")

	got, err := f.session.Suggestions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 suggestions, got %v", got)
	}
}

func TestSession_AgentFailureSurfaces(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, nil)
	f.streamer.err = errors.New("agent down")

	_ = f.session.Submit("q")
	eventually(t, "error status", func() bool {
		return mustState(t, f.session).ChatStatus == agent.StatusError
	})
	if mustState(t, f.session).ChatError == "" {
		t.Error("expected chat error message")
	}
}

func TestSession_SubscribeAndClose(t *testing.T) {
	f := newFixture(t, recognition.ModeEvent, nil)
	ch, cancel := f.session.Subscribe()
	defer cancel()

	_ = f.session.SetInput("x")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected change signal")
	}

	f.session.Close()
	eventually(t, "subscription closed", func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	})
	if _, err := f.session.State(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}

// Package assistant runs one voice search assistant session: the input
// buffer, speech recognition, search-as-you-type and query submission.
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"voice-search-assistant/internal/debounce"
	"voice-search-assistant/internal/models"
	"voice-search-assistant/internal/observability/logging"
	"voice-search-assistant/internal/service/agent"
	"voice-search-assistant/internal/service/recognition"
	"voice-search-assistant/internal/service/resolver"
	"voice-search-assistant/internal/service/search"
	"voice-search-assistant/internal/service/stt"
	"voice-search-assistant/internal/service/suggestion"
	"voice-search-assistant/internal/service/transcript"
)

var ErrClosed = errors.New("session closed")

// KeyEnter is the key that submits the input.
const KeyEnter = "Enter"

// Mic button variants.
const (
	MicVariantDefault     = "default"
	MicVariantDestructive = "destructive"
)

// Suggester fetches query suggestions.
type Suggester interface {
	Suggest(ctx context.Context, index, query string, hitsPerPage int) ([]search.QuerySuggestion, error)
}

// EventPublisher receives assistant events. All methods may be called
// concurrently.
type EventPublisher interface {
	agent.MessagePublisher
	PublishTranscript(ctx context.Context, ev models.TranscriptFinal) error
	PublishSubmission(ctx context.Context, ev models.SubmissionResolved) error
}

// Config configures a session.
type Config struct {
	ArticlesIndex    string
	SuggestionsIndex string
	HitsPerPage      int
	SuggestionCount  int
	RefineDebounce   time.Duration
	Recognition      recognition.Config
	Resolver         resolver.Config
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Searcher  search.Searcher
	Suggester Suggester
	Streamer  agent.Streamer
	Tools     agent.ToolResolver
	Store     suggestion.Store
	Publisher EventPublisher // optional
	STT       stt.Factory    // nil when speech recognition is unavailable
	Clock     clockwork.Clock
}

// State is a snapshot of a session for rendering.
type State struct {
	SessionID      string            `json:"sessionId"`
	Input          string            `json:"input"`
	Supported      bool              `json:"supported"`
	Listening      bool              `json:"listening"`
	MicDisabled    bool              `json:"micDisabled"`
	MicVariant     string            `json:"micVariant"`
	MicPressed     bool              `json:"micPressed"`
	Error          string            `json:"error,omitempty"`
	Warning        string            `json:"warning,omitempty"`
	Language       string            `json:"language"`
	Mode           recognition.Mode  `json:"mode"`
	ChatStatus     agent.Status      `json:"chatStatus"`
	ChatError      string            `json:"chatError,omitempty"`
	Messages       []models.Message  `json:"messages"`
	Results        search.ResultSet  `json:"results"`
	LastSubmission *resolver.Outcome `json:"lastSubmission,omitempty"`
}

// Session owns one assistant's input buffer and recognizer. All mutable
// state is touched only by the session's event loop goroutine.
type Session struct {
	id     string
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	reconciler *transcript.Reconciler
	rec        *recognition.Session
	tracker    *search.Tracker
	chat       *agent.Chat
	resolver   *resolver.Resolver
	refiner    *debounce.Debouncer

	ctx       context.Context
	cancel    context.CancelFunc
	inbox     chan func()
	sttEvents chan stt.Event
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	lastOutcome *resolver.Outcome

	subMu  sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// NewSession creates a session and starts its event loop.
func NewSession(id string, cfg Config, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:         id,
		cfg:        cfg,
		deps:       deps,
		logger:     logging.WithSession(id),
		reconciler: transcript.NewReconciler(),
		ctx:        ctx,
		cancel:     cancel,
		inbox:      make(chan func(), 16),
		sttEvents:  make(chan stt.Event, 64),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		subs:       make(map[int]chan struct{}),
	}

	var msgPub agent.MessagePublisher
	if deps.Publisher != nil {
		msgPub = deps.Publisher
	}

	cfg.Recognition.SessionID = id
	s.rec = recognition.NewSession(cfg.Recognition, deps.STT, s.reconciler, deps.Clock, s.sttEvents, s.done)
	s.tracker = search.NewTracker(deps.Searcher, search.TrackerConfig{
		Index:       cfg.ArticlesIndex,
		HitsPerPage: cfg.HitsPerPage,
	}, deps.Clock)
	s.chat = agent.NewChat(id, deps.Streamer, deps.Tools, msgPub)
	s.chat.OnChange(s.notify)
	s.resolver = resolver.New(cfg.Resolver, s.tracker, deps.Store, s.chat, deps.Clock)
	s.refiner = debounce.New(deps.Clock, cfg.RefineDebounce)

	go s.run()

	if w := s.rec.WarningMessage(); w != "" {
		s.logger.Info().Msg(w)
	}
	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.inbox:
			fn()
		case ev := <-s.sttEvents:
			s.handleRecognition(ev)
		}
	}
}

// do runs fn on the event loop and waits for it.
func (s *Session) do(fn func()) error {
	ran := make(chan struct{})
	select {
	case s.inbox <- func() { fn(); close(ran) }:
	case <-s.done:
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// post queues fn on the event loop without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.done:
	}
}

// State returns a snapshot of the session.
func (s *Session) State() (State, error) {
	var st State
	err := s.do(func() {
		st = State{
			SessionID:   s.id,
			Input:       s.reconciler.Buffer(),
			Supported:   s.rec.Supported(),
			Listening:   s.rec.Listening(),
			MicDisabled: s.rec.MicDisabled(),
			MicVariant:  MicVariantDefault,
			MicPressed:  s.rec.Listening(),
			Error:       s.rec.ErrorMessage(),
			Warning:     s.rec.WarningMessage(),
			Language:    s.rec.Language(),
			Mode:        s.rec.Mode(),
		}
		if st.Listening {
			st.MicVariant = MicVariantDestructive
		}
		if s.lastOutcome != nil {
			out := *s.lastOutcome
			st.LastSubmission = &out
		}
	})
	if err != nil {
		return State{}, err
	}

	st.ChatStatus = s.chat.Status()
	if err := s.chat.Err(); err != nil && st.ChatStatus == agent.StatusError {
		st.ChatError = err.Error()
	}
	st.Messages = s.chat.Messages()
	st.Results = s.tracker.Current()
	return st, nil
}

// SetInput replaces the input buffer, as when the user types.
func (s *Session) SetInput(value string) error {
	return s.do(func() {
		s.reconciler.SetBuffer(value)
		s.refine(value)
		s.notify()
	})
}

// HandleKey processes a key press in the input. Enter without shift submits
// the trimmed input and clears it. It reports whether a query was submitted.
func (s *Session) HandleKey(key string, shift bool) (bool, error) {
	submitted := false
	err := s.do(func() {
		if key != KeyEnter || shift {
			return
		}
		text := strings.TrimSpace(s.reconciler.Buffer())
		if text == "" {
			return
		}
		s.submit(text)
		s.reconciler.Reset()
		submitted = true
		s.notify()
	})
	return submitted, err
}

// Submit resolves query and leaves it in the input, as when a quick prompt
// is chosen.
func (s *Session) Submit(query string) error {
	return s.do(func() {
		text := strings.TrimSpace(query)
		if text == "" {
			return
		}
		s.reconciler.SetBuffer(text)
		s.submit(text)
		s.notify()
	})
}

// Clear empties the input and forgets the last transcript.
func (s *Session) Clear() error {
	return s.do(func() {
		s.reconciler.Reset()
		s.refine("")
		s.notify()
	})
}

// ToggleMic starts or stops listening. It does nothing while the mic is disabled.
func (s *Session) ToggleMic() error {
	var err error
	if doErr := s.do(func() {
		err = s.rec.Toggle(s.ctx)
		s.notify()
	}); doErr != nil {
		return doErr
	}
	return err
}

// SetLanguage changes the recognition language.
func (s *Session) SetLanguage(lang string) error {
	var err error
	if doErr := s.do(func() {
		err = s.rec.SetLanguage(lang)
		s.notify()
	}); doErr != nil {
		return doErr
	}
	return err
}

// SendAudio feeds captured audio to the active recognizer.
func (s *Session) SendAudio(ctx context.Context, audio []byte) error {
	var err error
	if doErr := s.do(func() {
		err = s.rec.SendAudio(ctx, audio)
	}); doErr != nil {
		return doErr
	}
	return err
}

// Suggestions returns the visible query suggestions for the current input.
func (s *Session) Suggestions(ctx context.Context) ([]search.QuerySuggestion, error) {
	if s.deps.Suggester == nil || s.cfg.SuggestionsIndex == "" {
		return nil, nil
	}
	var input string
	if err := s.do(func() { input = s.reconciler.Buffer() }); err != nil {
		return nil, err
	}

	hits, err := s.deps.Suggester.Suggest(ctx, s.cfg.SuggestionsIndex, strings.TrimSpace(input), s.cfg.SuggestionCount)
	if err != nil {
		return nil, err
	}
	return search.VisibleSuggestions(hits, input), nil
}

// Subscribe returns a channel signalled after state changes. Signals are
// coalesced; call State to read the new state. The channel is closed when
// the session closes or the returned cancel func is called.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan struct{}, 1)
	select {
	case <-s.done:
		close(ch)
		return ch, func() {}
	default:
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

func (s *Session) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close stops the recognizer and the event loop and waits for in-flight
// work to finish.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.do(func() {
			s.rec.Close()
			s.refiner.Stop()
		})
		s.cancel()

		s.subMu.Lock()
		close(s.done)
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		s.subMu.Unlock()

		<-s.stopped
		s.wg.Wait()
		s.tracker.Wait()
		s.logger.Info().Msg("Session closed")
	})
}

func (s *Session) handleRecognition(ev stt.Event) {
	out := s.rec.Handle(ev)
	if out.Ignored {
		return
	}
	if out.Changed {
		s.refine(s.reconciler.Buffer())
	}
	if out.Final != "" {
		s.publishTranscript(out)
	}
	if out.Submit != "" {
		s.submit(out.Submit)
	}
	s.notify()
}

func (s *Session) refine(query string) {
	s.refiner.Trigger(func() {
		s.tracker.Refine(s.ctx, query)
	})
}

// submit resolves text on a helper goroutine. Overlapping submissions are
// not serialized. A refinement still waiting on the debounce is dropped so
// it cannot supersede the resolver's own query.
func (s *Session) submit(text string) {
	s.refiner.Cancel()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		out, err := s.resolver.Resolve(s.ctx, s.id, text)
		s.publishSubmission(out, err)
		s.post(func() {
			s.lastOutcome = &out
			s.notify()
		})
	}()
}

func (s *Session) publishTranscript(out recognition.Outcome) {
	if s.deps.Publisher == nil {
		return
	}
	ev := models.TranscriptFinal{
		EventType:   models.EventTranscriptFinal,
		SessionID:   s.id,
		UtteranceID: out.UtteranceID,
		Language:    s.rec.Language(),
		Timestamp:   time.Now().UnixMilli(),
		Text:        out.Final,
		Confidence:  out.Confidence,
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.deps.Publisher.PublishTranscript(s.ctx, ev); err != nil {
			s.logger.Warn().Err(err).Str("utteranceId", ev.UtteranceID).Msg("Failed to publish transcript")
		}
	}()
}

// publishSubmission runs on the submission goroutine.
func (s *Session) publishSubmission(out resolver.Outcome, resolveErr error) {
	if s.deps.Publisher == nil || out.Decision == resolver.DecisionSkipped {
		return
	}
	ev := models.SubmissionResolved{
		EventType:     models.EventSubmissionResolved,
		SessionID:     s.id,
		Timestamp:     time.Now().UnixMilli(),
		Query:         out.Query,
		Decision:      string(out.Decision),
		ObjectIDs:     out.ObjectIDs,
		SearchMatched: out.SearchMatched,
	}
	if resolveErr != nil {
		ev.Error = resolveErr.Error()
	}
	if err := s.deps.Publisher.PublishSubmission(s.ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("query", out.Query).Msg("Failed to publish submission")
	}
}

package recognition

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"voice-search-assistant/internal/observability/logging"
	"voice-search-assistant/internal/observability/metrics"
	"voice-search-assistant/internal/service/stt"
	"voice-search-assistant/internal/service/transcript"
)

// Mode selects when recognized speech is merged into the input buffer.
type Mode string

const (
	// ModeEvent reconciles every result event immediately.
	ModeEvent Mode = "event"
	// ModeEnd holds results until the recognizer ends, then merges the
	// confirmed transcript and auto-submits it.
	ModeEnd Mode = "end"
)

// ParseMode returns the mode for s, defaulting to ModeEvent.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeEnd {
		return ModeEnd
	}
	return ModeEvent
}

const (
	// CodeGeneric replaces an empty error code.
	CodeGeneric = "speech-recognition-error"
	// CodeStartFailed is recorded when a recognizer cannot be started.
	CodeStartFailed = "start-failed"

	unsupportedWarning = "Voice input not supported in this runtime."
)

// Languages lists the recognition languages a session may select.
var Languages = []string{"en-US", "fr-FR", "es-ES", "it-IT", "de-DE"}

// ValidLanguage reports whether lang is one of Languages.
func ValidLanguage(lang string) bool {
	for _, l := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// Recoverable reports whether an error code returns silently to idle.
func Recoverable(code string) bool {
	return code == stt.CodeNoSpeech || code == stt.CodeAborted
}

// Limits defines safety guardrails for one recognition session.
type Limits struct {
	MaxAudioBytes int64         // Max audio accepted per session
	MaxDuration   time.Duration // Max session duration
	MaxResults    int           // Max result events per session
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxAudioBytes: 5 * 1024 * 1024, // 5MB (~160 seconds at 16kHz 16-bit mono)
		MaxDuration:   time.Minute,
		MaxResults:    500,
	}
}

// Config holds recognition session configuration.
type Config struct {
	SessionID string
	Mode      Mode
	Language  string
	Provider  string
	Limits    Limits
}

// Outcome describes what handling one event did to the session.
type Outcome struct {
	// Ignored is set for events from a superseded recognizer.
	Ignored bool
	// Changed is set when the input buffer changed.
	Changed bool
	// Submit holds text to submit automatically (ModeEnd only).
	Submit string
	// Final holds the confirmed transcript when the session ended with one.
	Final       string
	Confidence  float64
	UtteranceID string
}

// Session is the recognition state machine for one assistant session.
// It is owned by the assistant's event loop and is not safe for concurrent use.
type Session struct {
	cfg        Config
	factory    stt.Factory
	reconciler *transcript.Reconciler
	clock      clockwork.Clock
	events     chan<- stt.Event
	done       <-chan struct{}
	lifecycle  *Lifecycle
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	adapter    stt.Adapter
	generation uint64
	utterances int
	errCode    string

	// per utterance
	startedAt   time.Time
	audioBytes  int64
	resultCount int
	results     []stt.Result
}

// NewSession creates a recognition session. A nil factory means speech
// recognition is unavailable in this runtime. Adapter events are delivered
// to events and must be passed back through Handle.
func NewSession(
	cfg Config,
	factory stt.Factory,
	reconciler *transcript.Reconciler,
	clock clockwork.Clock,
	events chan<- stt.Event,
	done <-chan struct{},
) *Session {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeEvent
	}
	if cfg.Language == "" {
		cfg.Language = Languages[0]
	}
	return &Session{
		cfg:        cfg,
		factory:    factory,
		reconciler: reconciler,
		clock:      clock,
		events:     events,
		done:       done,
		lifecycle:  NewLifecycle(),
		metrics:    metrics.DefaultMetrics,
		logger:     logging.ForSession("recognition", cfg.SessionID),
	}
}

// Supported reports whether a recognizer is available.
func (s *Session) Supported() bool {
	return s.factory != nil
}

// Listening reports whether a recognizer is active.
func (s *Session) Listening() bool {
	return s.lifecycle.IsListening()
}

// State returns the lifecycle state.
func (s *Session) State() State {
	return s.lifecycle.State()
}

// Mode returns the reconcile mode.
func (s *Session) Mode() Mode {
	return s.cfg.Mode
}

// Language returns the recognition language.
func (s *Session) Language() string {
	return s.cfg.Language
}

// ErrorCode returns the stored non-recoverable error code, if any.
func (s *Session) ErrorCode() string {
	return s.errCode
}

// ErrorMessage returns the user-visible error, or "".
func (s *Session) ErrorMessage() string {
	if s.errCode == "" {
		return ""
	}
	return s.errCode + " (speech recognition)"
}

// WarningMessage returns the capability warning, or "".
func (s *Session) WarningMessage() string {
	if s.Supported() || s.errCode != "" {
		return ""
	}
	return unsupportedWarning
}

// MicDisabled reports whether voice input is unavailable.
func (s *Session) MicDisabled() bool {
	return !s.Supported() || s.errCode != ""
}

// Start opens a new recognizer. Starting while listening is a no-op.
func (s *Session) Start(ctx context.Context) error {
	if !s.Supported() {
		return ErrUnsupported
	}
	if s.Listening() {
		return nil
	}

	// A recognizer that reported an error may not have ended yet.
	if s.adapter != nil {
		s.generation++
		s.release()
	}

	s.utterances++
	utteranceID := fmt.Sprintf("%s-utt-%d", s.cfg.SessionID, s.utterances)
	adapter, err := s.factory(ctx, s.cfg.Language)
	if err != nil {
		s.errCode = CodeStartFailed
		s.logger.Error().Err(err).Msg("Failed to create recognizer")
		return fmt.Errorf("create recognizer: %w", err)
	}

	s.generation++
	cb := stt.NewChannelCallback(s.generation, s.events, s.done)
	if err := adapter.Start(ctx, cb); err != nil {
		s.generation++
		adapter.Close()
		s.errCode = CodeStartFailed
		s.logger.Error().Err(err).Msg("Failed to start recognizer")
		return fmt.Errorf("start recognizer: %w", err)
	}

	if err := s.lifecycle.Begin(utteranceID); err != nil {
		return err
	}
	s.adapter = adapter
	s.startedAt = s.clock.Now()
	s.audioBytes = 0
	s.resultCount = 0
	s.results = nil

	s.logger.Debug().
		Str("utteranceId", utteranceID).
		Str("language", s.cfg.Language).
		Str("mode", string(s.cfg.Mode)).
		Msg("Recognition started")
	return nil
}

// Stop asks the active recognizer to finish. The end event still follows.
func (s *Session) Stop() error {
	if !s.Listening() || s.adapter == nil {
		return nil
	}
	return s.adapter.Stop()
}

// Toggle starts or stops the recognizer. It is a no-op while the mic is disabled.
func (s *Session) Toggle(ctx context.Context) error {
	if s.MicDisabled() {
		return nil
	}
	if s.Listening() {
		return s.Stop()
	}
	return s.Start(ctx)
}

// SetLanguage switches the recognition language. An active recognizer is
// discarded and a stored error is cleared, since a new recognizer is created
// for the next start.
func (s *Session) SetLanguage(lang string) error {
	if !ValidLanguage(lang) {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	if lang == s.cfg.Language {
		return nil
	}
	s.abandon("language_changed")
	s.cfg.Language = lang
	s.errCode = ""
	return nil
}

// SendAudio forwards audio to the active recognizer, enforcing limits.
func (s *Session) SendAudio(ctx context.Context, audio []byte) error {
	if !s.Listening() || s.adapter == nil {
		return nil
	}

	s.audioBytes += int64(len(audio))
	s.metrics.RecordAudioReceived(len(audio))

	if err := s.checkLimits(); err != nil {
		return err
	}
	return s.adapter.SendAudio(ctx, audio)
}

// Close discards the active recognizer.
func (s *Session) Close() {
	s.abandon("closed")
}

// Handle applies one recognizer event. Events must be passed in the order
// they were received.
func (s *Session) Handle(ev stt.Event) Outcome {
	if ev.Generation != s.generation || s.adapter == nil {
		return Outcome{Ignored: true}
	}

	switch ev.Type {
	case stt.EventStart:
		s.errCode = ""
		s.metrics.RecordRecognitionStart()
		return Outcome{UtteranceID: s.lifecycle.UtteranceID()}

	case stt.EventResult:
		return s.handleResult(ev.Results)

	case stt.EventError:
		s.handleError(ev.Code)
		return Outcome{UtteranceID: s.lifecycle.UtteranceID()}

	case stt.EventEnd:
		return s.handleEnd()
	}
	return Outcome{Ignored: true}
}

func (s *Session) handleResult(results []stt.Result) Outcome {
	out := Outcome{UtteranceID: s.lifecycle.UtteranceID()}

	s.resultCount++
	s.results = results
	if len(results) > 0 {
		s.metrics.RecordTranscript(results[len(results)-1].IsFinal)
	}

	if err := s.checkLimits(); err != nil {
		return out
	}

	if s.cfg.Mode == ModeEvent {
		out.Changed = s.reconciler.ApplyIncoming(stt.JoinTranscripts(results))
		s.metrics.RecordReconcile(out.Changed)
	}
	return out
}

func (s *Session) handleError(code string) {
	if code == "" {
		code = CodeGeneric
	}
	s.lifecycle.Finish()

	recoverable := Recoverable(code)
	s.metrics.RecordRecognitionError(code, recoverable)
	if recoverable {
		s.errCode = ""
		s.logger.Debug().Str("code", code).Msg("Recognition ended without speech")
		return
	}

	s.errCode = code
	s.logger.Warn().
		Str("code", code).
		Str("utteranceId", s.lifecycle.UtteranceID()).
		Msg("Recognition error")
}

func (s *Session) handleEnd() Outcome {
	out := Outcome{UtteranceID: s.lifecycle.UtteranceID()}

	s.lifecycle.Finish()
	s.metrics.RecordRecognitionEnd()
	s.release()

	out.Final = stt.JoinFinal(s.results)
	out.Confidence = lastFinalConfidence(s.results)
	s.results = nil

	if s.cfg.Mode == ModeEnd && out.Final != "" {
		text := out.Final
		if prev := strings.TrimSpace(s.reconciler.Buffer()); prev != "" {
			text = prev + " " + out.Final
		}
		s.reconciler.SetBuffer(text)
		s.reconciler.ResetLastSeen()
		out.Changed = true
		out.Submit = text
		s.metrics.RecordReconcile(true)
	}

	s.logger.Debug().
		Str("utteranceId", out.UtteranceID).
		Str("final", out.Final).
		Msg("Recognition ended")
	return out
}

// checkLimits drops the utterance when a guardrail is exceeded.
func (s *Session) checkLimits() error {
	l := s.cfg.Limits
	var reason, limit string

	switch {
	case l.MaxAudioBytes > 0 && s.audioBytes > l.MaxAudioBytes:
		limit = "max_audio_bytes"
		reason = fmt.Sprintf("max audio bytes exceeded: %d > %d", s.audioBytes, l.MaxAudioBytes)
	case l.MaxDuration > 0 && s.clock.Since(s.startedAt) > l.MaxDuration:
		limit = "max_duration"
		reason = fmt.Sprintf("max duration exceeded: %v > %v", s.clock.Since(s.startedAt), l.MaxDuration)
	case l.MaxResults > 0 && s.resultCount > l.MaxResults:
		limit = "max_results"
		reason = fmt.Sprintf("max results exceeded: %d > %d", s.resultCount, l.MaxResults)
	default:
		return nil
	}

	s.metrics.RecordLimitExceeded(limit)
	s.logger.Warn().Str("reason", reason).Msg("Recognition limit exceeded")
	s.abandon(limit)
	return fmt.Errorf("recognition limit exceeded: %s", reason)
}

// abandon stops the recognizer without merging anything pending.
// Later events from it are ignored.
func (s *Session) abandon(reason string) {
	if s.adapter == nil {
		s.lifecycle.Finish()
		return
	}
	s.generation++
	s.release()
	s.results = nil
	if s.lifecycle.Finish() {
		s.metrics.RecordRecognitionDropped(reason)
		s.logger.Debug().Str("reason", reason).Msg("Recognition dropped")
	}
}

func (s *Session) release() {
	if s.adapter == nil {
		return
	}
	if err := s.adapter.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Recognizer close failed")
	}
	s.adapter = nil
}

func lastFinalConfidence(results []stt.Result) float64 {
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].IsFinal {
			return results[i].Confidence()
		}
	}
	return 0
}

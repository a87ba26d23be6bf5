// Package mock provides a mock STT adapter for testing without cloud credentials.
// It simulates a press-to-talk recognizer: cumulative interim results while audio
// arrives, exactly one final result per utterance, then an end event.
package mock

import (
	"context"
	"sync"
	"time"

	"voice-search-assistant/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive interim transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample search queries for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"influential", "influential celeb"},
		Final:      "influential celebrities",
		Confidence: 0.95,
	},
	{
		Partials:   []string{"what are", "what are the latest", "what are the latest fashion"},
		Final:      "what are the latest fashion trends",
		Confidence: 0.93,
	},
	{
		Partials:   []string{"current state", "current state of the", "current state of the retail"},
		Final:      "current state of the retail industry",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"red shoes", "red shoes under"},
		Final:      "red shoes under fifty dollars",
		Confidence: 0.89,
	},
}

// Config controls the simulation.
type Config struct {
	// Utterance is played instead of cycling through DefaultUtterances when set.
	Utterance *SimulatedUtterance
	// Delay before each emitted event.
	Delay time.Duration
	// Autoplay plays the whole utterance after Start without audio input.
	Autoplay bool
	// FailWith makes the adapter report this error code after Start.
	FailWith string
}

// DefaultConfig returns the simulation defaults.
func DefaultConfig() Config {
	return Config{Delay: 50 * time.Millisecond}
}

// Adapter implements stt.Adapter with mock responses.
// Events are emitted from a single goroutine so callbacks keep their order.
type Adapter struct {
	cfg       Config
	utterance SimulatedUtterance

	mu            sync.Mutex
	cb            stt.Callback
	queue         chan func(stt.Callback)
	audioReceived int
	partialIndex  int
	finalSent     bool
	ended         bool
	closed        bool
}

// utteranceCounter tracks which utterance to use next (cycles through defaults)
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// New creates a new mock STT adapter with default settings.
func New() *Adapter {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a mock STT adapter.
func NewWithConfig(cfg Config) *Adapter {
	utt := nextUtterance()
	if cfg.Utterance != nil {
		utt = *cfg.Utterance
	}
	return &Adapter{
		cfg:       cfg,
		utterance: utt,
	}
}

// Factory returns an stt.Factory producing mock adapters. The language is ignored.
func Factory(cfg Config) stt.Factory {
	return func(ctx context.Context, language string) (stt.Adapter, error) {
		return NewWithConfig(cfg), nil
	}
}

func nextUtterance() SimulatedUtterance {
	counterMu.Lock()
	defer counterMu.Unlock()
	idx := utteranceCounter % len(DefaultUtterances)
	utteranceCounter++
	return DefaultUtterances[idx]
}

// Start begins a mock recognition session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cb = cb
	a.queue = make(chan func(stt.Callback), len(a.utterance.Partials)+8)
	go a.run(a.queue)

	a.enqueue(func(cb stt.Callback) { cb.OnStart() })

	if a.cfg.FailWith != "" {
		code := a.cfg.FailWith
		a.finish(func(cb stt.Callback) { cb.OnError(code) })
		return nil
	}

	if a.cfg.Autoplay {
		for a.partialIndex < len(a.utterance.Partials) {
			a.emitNextPartial()
		}
		a.emitFinal()
	}
	return nil
}

// SendAudio simulates receiving audio and triggers progressive interim results.
// When all partials are sent, it simulates end-of-utterance detection.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.ended || a.cb == nil {
		return nil
	}

	a.audioReceived++

	if a.partialIndex < len(a.utterance.Partials) {
		a.emitNextPartial()
	} else if !a.finalSent {
		a.emitFinal()
	}
	return nil
}

// Stop finishes the utterance: the final result is sent if it was not yet,
// followed by the end event.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.ended || a.cb == nil {
		return nil
	}
	if !a.finalSent {
		a.emitFinal()
	}
	return nil
}

// Close aborts the session. No further events are delivered.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	if a.queue != nil && !a.ended {
		close(a.queue)
	}
	a.ended = true
	return nil
}

// emitNextPartial must be called with mu held.
func (a *Adapter) emitNextPartial() {
	text := a.utterance.Partials[a.partialIndex]
	a.partialIndex++
	a.enqueue(func(cb stt.Callback) {
		cb.OnResult([]stt.Result{{
			Alternatives: []stt.Alternative{{Transcript: text}},
		}})
	})
}

// emitFinal must be called with mu held.
func (a *Adapter) emitFinal() {
	a.finalSent = true
	utt := a.utterance
	a.enqueue(func(cb stt.Callback) {
		cb.OnResult([]stt.Result{{
			Alternatives: []stt.Alternative{{Transcript: utt.Final, Confidence: utt.Confidence}},
			IsFinal:      true,
		}})
	})
	a.finish(nil)
}

// finish queues an optional last event plus the end event and closes the queue.
// Must be called with mu held.
func (a *Adapter) finish(last func(stt.Callback)) {
	if last != nil {
		a.enqueue(last)
	}
	a.enqueue(func(cb stt.Callback) { cb.OnEnd() })
	a.ended = true
	close(a.queue)
}

func (a *Adapter) enqueue(fn func(stt.Callback)) {
	a.queue <- fn
}

func (a *Adapter) run(queue <-chan func(stt.Callback)) {
	for fn := range queue {
		if a.cfg.Delay > 0 {
			time.Sleep(a.cfg.Delay)
		}
		a.mu.Lock()
		closed := a.closed
		cb := a.cb
		a.mu.Unlock()

		if closed || cb == nil {
			continue
		}
		fn(cb)
	}
}

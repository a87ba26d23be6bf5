// Package stt defines the interface for Speech-to-Text adapters.
package stt

import (
	"context"
	"strings"
)

// Error codes reported through Callback.OnError.
const (
	CodeNoSpeech             = "no-speech"
	CodeAborted              = "aborted"
	CodeAudioCapture         = "audio-capture"
	CodeNetwork              = "network"
	CodeNotAllowed           = "not-allowed"
	CodeServiceNotAllowed    = "service-not-allowed"
	CodeLanguageNotSupported = "language-not-supported"
)

// Alternative is one candidate transcript for a result.
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// Result is one recognized segment of the current session.
type Result struct {
	Alternatives []Alternative `json:"alternatives"`
	IsFinal      bool          `json:"isFinal"`
}

// Transcript returns the top alternative's transcript.
func (r Result) Transcript() string {
	if len(r.Alternatives) == 0 {
		return ""
	}
	return r.Alternatives[0].Transcript
}

// Confidence returns the top alternative's confidence.
func (r Result) Confidence() float64 {
	if len(r.Alternatives) == 0 {
		return 0
	}
	return r.Alternatives[0].Confidence
}

// JoinTranscripts joins the top alternatives of all results with a space.
func JoinTranscripts(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Transcript())
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// JoinFinal joins the top alternatives of final results only.
func JoinFinal(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.IsFinal {
			parts = append(parts, r.Transcript())
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Callback receives recognition events from the STT provider.
// Events for one session are delivered in emission order.
type Callback interface {
	// OnStart is called once the provider is capturing audio.
	OnStart()

	// OnResult is called with the cumulative result list of the session.
	OnResult(results []Result)

	// OnEnd is called when the session is over, after any error.
	OnEnd()

	// OnError is called with a provider-independent error code.
	OnError(code string)
}

// Adapter defines the interface for STT providers (Google, mock, etc.).
type Adapter interface {
	// Start begins a streaming recognition session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends audio bytes to the STT provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Stop asks the provider to finish the utterance. Pending results and
	// OnEnd are still delivered.
	Stop() error

	// Close aborts the session and releases resources.
	Close() error
}

// Factory creates an adapter for a recognition language.
type Factory func(ctx context.Context, language string) (Adapter, error)

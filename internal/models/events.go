package models

// Event type names published on the event bus.
const (
	EventTranscriptFinal    = "assistant.transcript.final"
	EventMessageCompleted   = "assistant.message.completed"
	EventSubmissionResolved = "assistant.submission.resolved"
)

// TranscriptFinal represents a confirmed transcript from one recognition session.
type TranscriptFinal struct {
	EventType   string  `json:"eventType"`
	SessionID   string  `json:"sessionId"`
	UtteranceID string  `json:"utteranceId"`
	Language    string  `json:"language"`
	Timestamp   int64   `json:"timestamp"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
}

// MessageCompleted is published when a chat message is fully appended.
type MessageCompleted struct {
	EventType string  `json:"eventType"`
	SessionID string  `json:"sessionId"`
	Timestamp int64   `json:"timestamp"`
	Message   Message `json:"message"`
}

// SubmissionResolved records the cache decision for a submitted query.
type SubmissionResolved struct {
	EventType     string   `json:"eventType"`
	SessionID     string   `json:"sessionId"`
	Timestamp     int64    `json:"timestamp"`
	Query         string   `json:"query"`
	Decision      string   `json:"decision"`
	ObjectIDs     []string `json:"objectIds"`
	SearchMatched bool     `json:"searchMatched"`
	Error         string   `json:"error,omitempty"`
}

// Package events provides the in-process event bus and typed domain events
// that decouple transcript ingestion from the processing pipeline.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of a domain event.
type Type string

const (
	// CallStarted indicates a call began and a processing job should exist.
	CallStarted Type = "call.started"
	// CallEnded indicates a call finished; live sessions close on this.
	CallEnded Type = "call.ended"
	// TranscriptReceived carries one partial or final transcript segment.
	TranscriptReceived Type = "transcript.received"
	// QuestionDetected indicates signal extraction found a candidate question.
	QuestionDetected Type = "question.detected"
	// SuggestionGenerated indicates a suggestion was composed for a call.
	SuggestionGenerated Type = "suggestion.generated"
)

// Event is the envelope for all domain events on the bus.
type Event struct {
	ID        uuid.UUID `json:"event_id"`
	Type      Type      `json:"event_type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// CallStartedPayload contains data for call.started events.
type CallStartedPayload struct {
	WorkspaceID string `json:"workspace_id"`
}

// CallEndedPayload contains data for call.ended events.
type CallEndedPayload struct {
	DurationMs int64 `json:"duration_ms"`
}

// TranscriptPayload contains data for transcript.received events.
type TranscriptPayload struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Speaker    string  `json:"speaker,omitempty"`
	Confidence float64 `json:"confidence"`
}

// QuestionPayload contains data for question.detected events.
type QuestionPayload struct {
	Question   string  `json:"question"`
	Confidence float64 `json:"confidence"`
}

// SuggestionPayload contains data for suggestion.generated events.
type SuggestionPayload struct {
	Title      string  `json:"title"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// New creates an event envelope with a fresh ID and UTC timestamp.
func New(eventType Type, sessionID string, payload any) Event {
	return Event{
		ID:        uuid.New(),
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Package stream implements the live event fan-out layer. It maintains
// per-call sets of subscriber connections and broadcasts recommendation
// events to every connected viewer without blocking producers.
package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies the kind of a live event frame.
type EventType string

const (
	// EventRecommendationGenerated carries a freshly generated recommendation.
	EventRecommendationGenerated EventType = "recommendation.generated"
	// EventRecommendationUpdated carries a revision of an earlier recommendation.
	EventRecommendationUpdated EventType = "recommendation.updated"
	// EventConnectionEstablished is the first frame on every new connection.
	EventConnectionEstablished EventType = "connection-established"
)

// Priority levels for recommendations.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Category classifies what kind of action a recommendation suggests.
type Category string

const (
	CategoryAnswer    Category = "answer"
	CategoryObjection Category = "objection"
	CategoryNextStep  Category = "next-step"
)

// Recommendation is the payload surfaced to call viewers.
type Recommendation struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority Priority `json:"priority"`
	Category Category `json:"category"`
}

// Event is one live event frame. Recommendation is absent for
// connection-established events.
type Event struct {
	Type           EventType       `json:"type"`
	SessionID      string          `json:"sessionId"`
	Timestamp      time.Time       `json:"timestamp"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

// Frame serializes the event to its wire form: a single UTF-8 text frame
// `data: <json-event>` terminated by a double line-break.
func (e Event) Frame() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}

// NewRecommendationEvent creates a recommendation.generated event.
func NewRecommendationEvent(sessionID string, rec Recommendation) Event {
	return Event{
		Type:           EventRecommendationGenerated,
		SessionID:      sessionID,
		Timestamp:      time.Now().UTC(),
		Recommendation: &rec,
	}
}

// NewRecommendationUpdateEvent creates a recommendation.updated event.
func NewRecommendationUpdateEvent(sessionID string, rec Recommendation) Event {
	return Event{
		Type:           EventRecommendationUpdated,
		SessionID:      sessionID,
		Timestamp:      time.Now().UTC(),
		Recommendation: &rec,
	}
}

func newConnectionEvent(sessionID string) Event {
	return Event{
		Type:      EventConnectionEstablished,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

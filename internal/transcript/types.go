// Package transcript accumulates the per-call transcript window that the
// pipeline's capture stage reads.
package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Segment is one transcript fragment from the transcription provider.
type Segment struct {
	Text       string    `json:"text"`
	Speaker    string    `json:"speaker,omitempty"`
	IsFinal    bool      `json:"is_final"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Window is the accumulated transcript for one call, ordered by arrival.
type Window struct {
	CallID   string    `json:"call_id"`
	Segments []Segment `json:"segments"`
}

// Empty reports whether the window holds no finalized speech.
func (w Window) Empty() bool {
	for _, segment := range w.Segments {
		if segment.IsFinal {
			return false
		}
	}
	return true
}

// Text renders the finalized segments as numbered utterances, the form the
// signal extractor cites evidence against.
func (w Window) Text() string {
	var sb strings.Builder
	index := 0
	for _, segment := range w.Segments {
		if !segment.IsFinal {
			continue
		}
		speaker := segment.Speaker
		if speaker == "" {
			speaker = "speaker"
		}
		fmt.Fprintf(&sb, "[%d] %s: %s\n", index, speaker, segment.Text)
		index++
	}
	return sb.String()
}

// Store persists transcript segments per call.
type Store interface {
	// Append adds a segment to the call's window.
	Append(ctx context.Context, callID string, segment Segment) error
	// Window returns the call's accumulated window.
	Window(ctx context.Context, callID string) (Window, error)
	// Clear removes the call's window.
	Clear(ctx context.Context, callID string) error
}

// Package suggest turns detected questions and retrieved knowledge into
// rep-facing talking points and call summaries.
package suggest

import (
	"context"

	"github.com/callsight/callsight/internal/knowledge"
	"github.com/callsight/callsight/internal/signals"
	"github.com/callsight/callsight/internal/transcript"
)

// Suggestion is one composed answer for a live question.
type Suggestion struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Sources    []string `json:"sources"`
}

// Composer produces suggestions during a call and a summary after it.
type Composer interface {
	Compose(ctx context.Context, question string, snippets []knowledge.Snippet) (*Suggestion, error)
	Summarize(ctx context.Context, window transcript.Window, sigs []signals.Signal) (string, error)
}

package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/callsight/callsight/internal/knowledge"
	"github.com/callsight/callsight/internal/signals"
	"github.com/callsight/callsight/internal/transcript"
)

// TemplateComposer builds suggestions and summaries from fixed templates.
// It serves development setups without model credentials; output quality is
// bounded by whatever the retriever found.
type TemplateComposer struct{}

// NewTemplateComposer returns the deterministic composer.
func NewTemplateComposer() *TemplateComposer {
	return &TemplateComposer{}
}

// Compose quotes the best snippet when one exists, otherwise suggests
// deferring the answer.
func (TemplateComposer) Compose(_ context.Context, question string, snippets []knowledge.Snippet) (*Suggestion, error) {
	if len(snippets) == 0 {
		return &Suggestion{
			Text:       fmt.Sprintf("No playbook material covers %q. Acknowledge the question and promise a follow-up after the call.", question),
			Confidence: 0.2,
		}, nil
	}

	best := snippets[0]
	sources := make([]string, 0, len(snippets))
	for _, s := range snippets {
		sources = append(sources, s.Source)
	}
	return &Suggestion{
		Text:       fmt.Sprintf("%s (see %s)", best.Content, best.Title),
		Confidence: best.Similarity,
		Sources:    sources,
	}, nil
}

// Summarize lists the detected signals over a one-line call digest.
func (TemplateComposer) Summarize(_ context.Context, window transcript.Window, sigs []signals.Signal) (string, error) {
	finals := 0
	for _, seg := range window.Segments {
		if seg.IsFinal {
			finals++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Call %s with %d utterances.", window.CallID, finals)
	if len(sigs) == 0 {
		sb.WriteString(" No notable signals detected.")
		return sb.String(), nil
	}
	sb.WriteString(" Detected:")
	for _, s := range sigs {
		fmt.Fprintf(&sb, " %s (%s, %.2f);", s.Label, s.Type, s.Confidence)
	}
	return strings.TrimSuffix(sb.String(), ";"), nil
}

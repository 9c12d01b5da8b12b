package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/callsight/callsight/internal/knowledge"
	"github.com/callsight/callsight/internal/logger"
	"github.com/callsight/callsight/internal/signals"
	"github.com/callsight/callsight/internal/transcript"
)

const composeSystemPrompt = `You help a sales rep answer a prospect question mid-call. Using only the provided knowledge snippets, write a concise talking point the rep can say out loud. Reply as JSON: {"text":"...","confidence":0.0-1.0}. If the snippets do not cover the question, answer from general product-sales practice with lower confidence. JSON only.`

const summarizeSystemPrompt = `You summarize a finished sales call for the CRM. Given the transcript and detected signals, write 3-6 sentences covering outcome, objections, open questions, and the agreed next step. Plain text only.`

// LLMComposer composes suggestions and summaries with an Anthropic model.
type LLMComposer struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       logger.Logger
}

// NewLLMComposer builds a composer for the given API key and model name.
func NewLLMComposer(apiKey, model string, log logger.Logger) *LLMComposer {
	return &LLMComposer{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: 1024,
		log:       log,
	}
}

// Compose answers a question grounded on the retrieved snippets.
func (c *LLMComposer) Compose(ctx context.Context, question string, snippets []knowledge.Snippet) (*Suggestion, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question: %s\n\nKnowledge snippets:\n", question)
	for i, s := range snippets {
		fmt.Fprintf(&prompt, "[%d] %s: %s\n", i+1, s.Title, s.Content)
	}
	if len(snippets) == 0 {
		prompt.WriteString("(none)\n")
	}

	reply, err := c.complete(ctx, composeSystemPrompt, prompt.String())
	if err != nil {
		return nil, fmt.Errorf("compose suggestion: %w", err)
	}

	suggestion, err := ParseSuggestion(reply)
	if err != nil {
		return nil, err
	}
	for _, s := range snippets {
		suggestion.Sources = append(suggestion.Sources, s.Source)
	}
	return suggestion, nil
}

// Summarize produces the after-call summary text.
func (c *LLMComposer) Summarize(ctx context.Context, window transcript.Window, sigs []signals.Signal) (string, error) {
	var prompt strings.Builder
	prompt.WriteString("Transcript:\n")
	prompt.WriteString(window.Text())
	prompt.WriteString("\nDetected signals:\n")
	for _, s := range sigs {
		fmt.Fprintf(&prompt, "- %s: %s (%.2f)\n", s.Type, s.Label, s.Confidence)
	}

	reply, err := c.complete(ctx, summarizeSystemPrompt, prompt.String())
	if err != nil {
		return "", fmt.Errorf("compose summary: %w", err)
	}
	return strings.TrimSpace(reply), nil
}

func (c *LLMComposer) complete(ctx context.Context, system, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// ParseSuggestion decodes a compose reply, tolerating markdown fences.
func ParseSuggestion(text string) (*Suggestion, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	var s Suggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &s); err != nil {
		return nil, fmt.Errorf("parse suggestion: %w", err)
	}
	if s.Text == "" {
		return nil, fmt.Errorf("parse suggestion: empty text")
	}
	if s.Confidence < 0 {
		s.Confidence = 0
	}
	if s.Confidence > 1 {
		s.Confidence = 1
	}
	return &s, nil
}

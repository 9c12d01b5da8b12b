package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/callsight/callsight/internal/logger"
	"github.com/callsight/callsight/internal/transcript"
)

const extractSystemPrompt = `You analyze live sales-call transcripts. From the numbered utterances, extract conversation signals as a JSON array. Each element:
{"type":"objection_detected|intent_detected|topic_detected|risk_flag|next_question_candidate|info_gap","label":"short description","confidence":0.0-1.0,"evidence":[{"utterance":<number>,"quote":"verbatim text"}]}
Every signal must cite at least one utterance. Return at most 12 signals, the JSON array only, no prose.`

// LLMExtractor detects signals with an Anthropic model.
type LLMExtractor struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       logger.Logger
}

// NewLLMExtractor builds an extractor for the given API key and model name.
func NewLLMExtractor(apiKey, model string, log logger.Logger) *LLMExtractor {
	return &LLMExtractor{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: 1024,
		log:       log,
	}
}

// Extract sends the rendered window to the model and parses its JSON reply.
func (e *LLMExtractor) Extract(ctx context.Context, window transcript.Window) ([]Signal, error) {
	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: extractSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(window.Text())),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("signal extraction request: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	sigs, err := ParseSignals(sb.String())
	if err != nil {
		e.log.Warn("unparseable extraction response", logger.Error(err))
		return nil, err
	}
	return sigs, nil
}

// ParseSignals decodes a model reply into a normalized signal list. Markdown
// code fences around the JSON are tolerated.
func ParseSignals(text string) ([]Signal, error) {
	text = stripFences(text)

	var raw []Signal
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("parse signals: %w", err)
	}
	for _, s := range raw {
		switch s.Type {
		case TypeObjection, TypeIntent, TypeTopic, TypeRisk, TypeNextQuestion, TypeInfoGap:
		default:
			return nil, fmt.Errorf("parse signals: unknown type %q", s.Type)
		}
	}
	return Normalize(raw), nil
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

package signals

import (
	"context"
	"strings"

	"github.com/callsight/callsight/internal/transcript"
)

// keywordRule maps utterance phrases to a signal.
type keywordRule struct {
	signalType Type
	label      string
	confidence float64
	phrases    []string
}

var defaultRules = []keywordRule{
	{TypeObjection, "pricing objection", 0.85, []string{"too expensive", "out of budget", "cheaper", "price is too high"}},
	{TypeObjection, "competitor comparison", 0.75, []string{"competitor", "we already use", "switching from", "compared to"}},
	{TypeObjection, "timing objection", 0.7, []string{"not the right time", "next quarter", "maybe later", "circle back"}},
	{TypeIntent, "budget discussion", 0.8, []string{"budget", "pricing tiers", "how much does"}},
	{TypeIntent, "decision process", 0.75, []string{"decision maker", "procurement", "sign off", "approval"}},
	{TypeIntent, "timeline interest", 0.7, []string{"how soon", "onboarding", "implementation timeline", "go live"}},
	{TypeRisk, "churn risk", 0.8, []string{"cancel", "churn", "not renewing", "disappointed"}},
	{TypeRisk, "legal concern", 0.75, []string{"legal", "compliance", "data residency", "gdpr"}},
	{TypeInfoGap, "unanswered follow-up", 0.65, []string{"get back to you", "have to check", "not sure about", "i'll find out"}},
	{TypeTopic, "integration discussion", 0.6, []string{"integration", "api", "webhook", "sso"}},
	{TypeTopic, "security discussion", 0.6, []string{"security", "encryption", "audit", "soc 2"}},
}

// RuleExtractor detects signals with keyword rules over final utterances.
// It is deterministic and needs no network, which makes it the fallback when
// no model credentials are configured.
type RuleExtractor struct {
	rules []keywordRule
}

// NewRuleExtractor returns an extractor backed by the built-in rule set.
func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{rules: defaultRules}
}

// Extract scans each final utterance against every rule and emits one signal
// per matched rule, citing every matching utterance as evidence. Direct
// questions become next_question_candidate signals.
func (e *RuleExtractor) Extract(_ context.Context, window transcript.Window) ([]Signal, error) {
	byLabel := make(map[string]*Signal)
	var order []string

	utterance := -1
	for _, seg := range window.Segments {
		if !seg.IsFinal {
			continue
		}
		utterance++
		lower := strings.ToLower(seg.Text)

		for _, rule := range e.rules {
			if !matchesAny(lower, rule.phrases) {
				continue
			}
			sig, ok := byLabel[rule.label]
			if !ok {
				sig = &Signal{Type: rule.signalType, Label: rule.label, Confidence: rule.confidence}
				byLabel[rule.label] = sig
				order = append(order, rule.label)
			}
			sig.Evidence = append(sig.Evidence, Evidence{Utterance: utterance, Quote: seg.Text})
		}

		if question := questionText(seg.Text); question != "" {
			label := "question: " + question
			if _, ok := byLabel[label]; !ok {
				byLabel[label] = &Signal{
					Type:       TypeNextQuestion,
					Label:      question,
					Confidence: 0.7,
					Evidence:   []Evidence{{Utterance: utterance, Quote: seg.Text}},
				}
				order = append(order, label)
			}
		}
	}

	out := make([]Signal, 0, len(order))
	for _, label := range order {
		out = append(out, *byLabel[label])
	}
	return Normalize(out), nil
}

func matchesAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// questionText returns the last question sentence in an utterance, or "".
func questionText(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.Contains(trimmed, "?") {
		return ""
	}
	// Take the sentence ending at the final question mark.
	end := strings.LastIndex(trimmed, "?")
	start := strings.LastIndexAny(trimmed[:end], ".!?") + 1
	question := strings.TrimSpace(trimmed[start : end+1])
	if question == "?" {
		return ""
	}
	return question
}

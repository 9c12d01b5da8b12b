// Package signals extracts typed, evidence-cited conversation signals from
// an accumulated transcript window.
package signals

import (
	"context"
	"sort"

	"github.com/callsight/callsight/internal/transcript"
)

// MaxSignals caps how many signals one extraction may return.
const MaxSignals = 12

// Type classifies a detected signal.
type Type string

const (
	// TypeObjection marks a prospect objection.
	TypeObjection Type = "objection_detected"
	// TypeIntent marks expressed buying intent.
	TypeIntent Type = "intent_detected"
	// TypeTopic marks a discussed topic.
	TypeTopic Type = "topic_detected"
	// TypeRisk marks deal-risk language.
	TypeRisk Type = "risk_flag"
	// TypeNextQuestion marks a question worth answering next.
	TypeNextQuestion Type = "next_question_candidate"
	// TypeInfoGap marks information the prospect asked for but did not get.
	TypeInfoGap Type = "info_gap"
)

// Evidence cites the utterance a signal was derived from.
type Evidence struct {
	Utterance int    `json:"utterance"`
	Quote     string `json:"quote"`
}

// Signal is one detected conversation signal.
type Signal struct {
	Type       Type       `json:"type"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Evidence   []Evidence `json:"evidence"`
}

// IsQuestion reports whether the signal names a candidate question for the
// recommendation stage.
func (s Signal) IsQuestion() bool {
	return s.Type == TypeNextQuestion || s.Type == TypeInfoGap
}

// Extractor produces signals from a transcript window. Implementations are
// black boxes to the pipeline; timeout and retry policy belong to the
// caller.
type Extractor interface {
	Extract(ctx context.Context, window transcript.Window) ([]Signal, error)
}

// Normalize enforces the extraction contract on a raw signal list: signals
// without evidence are discarded, confidences clamp to [0,1], the result is
// ordered by descending confidence and truncated to MaxSignals. Evidence
// correctness is not checked, only its presence.
func Normalize(raw []Signal) []Signal {
	out := make([]Signal, 0, len(raw))
	for _, s := range raw {
		if len(s.Evidence) == 0 {
			continue
		}
		if s.Confidence < 0 {
			s.Confidence = 0
		}
		if s.Confidence > 1 {
			s.Confidence = 1
		}
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	if len(out) > MaxSignals {
		out = out[:MaxSignals]
	}
	return out
}

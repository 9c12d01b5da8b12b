// Package job implements the call processing job state machine. A job tracks
// one call through the ordered pipeline stages and is the single source of
// truth for whether that call's processing is done, and with what result.
package job

import "time"

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending indicates the job has been created but no stage has run.
	StatusPending Status = "pending"
	// StatusRunning indicates at least one stage attempt has started.
	StatusRunning Status = "running"
	// StatusCompleted indicates all stages finished successfully. Terminal.
	StatusCompleted Status = "completed"
	// StatusFailed indicates a stage exhausted its attempts. Terminal.
	StatusFailed Status = "failed"
)

// Stage represents one ordered phase of call processing.
type Stage string

const (
	// StageTranscript captures the accumulated transcript window.
	StageTranscript Stage = "transcript"
	// StageSignals extracts typed signals from the transcript.
	StageSignals Stage = "signals"
	// StageRecommendations generates and broadcasts recommendations.
	StageRecommendations Stage = "recommendations"
	// StageSummary produces the end-of-call summary.
	StageSummary Stage = "summary"
	// StageDone is the sentinel stage after summary completes.
	StageDone Stage = "done"
)

// Stages lists the pipeline stages in execution order, excluding done.
var Stages = []Stage{StageTranscript, StageSignals, StageRecommendations, StageSummary}

// next returns the stage following s in the pipeline order.
func (s Stage) next() Stage {
	switch s {
	case StageTranscript:
		return StageSignals
	case StageSignals:
		return StageRecommendations
	case StageRecommendations:
		return StageSummary
	default:
		return StageDone
	}
}

// Progress reports which stages have completed. A flag is set exactly once
// and never unset.
type Progress struct {
	Transcript      bool `json:"transcript"`
	Signals         bool `json:"signals"`
	Recommendations bool `json:"recommendations"`
	Summary         bool `json:"summary"`
}

func (p Progress) done(stage Stage) bool {
	switch stage {
	case StageTranscript:
		return p.Transcript
	case StageSignals:
		return p.Signals
	case StageRecommendations:
		return p.Recommendations
	case StageSummary:
		return p.Summary
	default:
		return false
	}
}

func (p *Progress) mark(stage Stage) {
	switch stage {
	case StageTranscript:
		p.Transcript = true
	case StageSignals:
		p.Signals = true
	case StageRecommendations:
		p.Recommendations = true
	case StageSummary:
		p.Summary = true
	}
}

// Job is an immutable snapshot of a job's state, as exposed to the pipeline
// driver and the status API.
type Job struct {
	ID           string     `json:"id"`
	CallID       string     `json:"callId"`
	Status       Status     `json:"status"`
	CurrentStage Stage      `json:"currentStage"`
	Progress     Progress   `json:"progress"`
	AttemptCount int        `json:"attemptCount"`
	MaxAttempts  int        `json:"maxAttempts"`
	LastError    string     `json:"lastError,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Terminal reports whether the job has reached a terminal status.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Package pipeline drives call processing jobs through their stages and
// reacts to domain events with per-call workers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/callsight/callsight/internal/events"
	"github.com/callsight/callsight/internal/job"
	"github.com/callsight/callsight/internal/knowledge"
	"github.com/callsight/callsight/internal/logger"
	"github.com/callsight/callsight/internal/metrics"
	"github.com/callsight/callsight/internal/retry"
	"github.com/callsight/callsight/internal/signals"
	"github.com/callsight/callsight/internal/stream"
	"github.com/callsight/callsight/internal/suggest"
	"github.com/callsight/callsight/internal/transcript"
)

// Fanout is the live delivery surface the driver needs.
type Fanout interface {
	Broadcast(sessionID string, event stream.Event)
	CloseSession(sessionID string)
}

// Config bounds stage execution.
type Config struct {
	StageTimeout   time.Duration
	Backoff        retry.Backoff
	RetrievalLimit int
	MinSimilarity  float64
}

func (c Config) withDefaults() Config {
	if c.StageTimeout <= 0 {
		c.StageTimeout = 30 * time.Second
	}
	if c.RetrievalLimit <= 0 {
		c.RetrievalLimit = 5
	}
	return c
}

// Driver executes pipeline stages for one job at a time, applying the
// store's attempt accounting and the retry backoff between failed attempts.
type Driver struct {
	store       *job.Store
	transcripts transcript.Store
	extractor   signals.Extractor
	retriever   knowledge.Retriever
	composer    suggest.Composer
	fanout      Fanout
	bus         *events.Bus
	metrics     *metrics.Metrics
	log         logger.Logger
	cfg         Config
}

// NewDriver wires a stage driver. metrics may be nil.
func NewDriver(
	store *job.Store,
	transcripts transcript.Store,
	extractor signals.Extractor,
	retriever knowledge.Retriever,
	composer suggest.Composer,
	fanout Fanout,
	bus *events.Bus,
	m *metrics.Metrics,
	log logger.Logger,
	cfg Config,
) *Driver {
	return &Driver{
		store:       store,
		transcripts: transcripts,
		extractor:   extractor,
		retriever:   retriever,
		composer:    composer,
		fanout:      fanout,
		bus:         bus,
		metrics:     m,
		log:         log,
		cfg:         cfg.withDefaults(),
	}
}

var stageOrder = map[job.Stage]int{
	job.StageTranscript:      0,
	job.StageSignals:         1,
	job.StageRecommendations: 2,
	job.StageSummary:         3,
	job.StageDone:            4,
}

// RunThrough advances the job stage by stage until the stage after `through`
// is reached, the job turns terminal, or the context is cancelled. Each
// failed attempt is recorded and retried after backoff; exhausting a stage's
// attempts fails the job permanently.
func (d *Driver) RunThrough(ctx context.Context, jobID, workspaceID string, through job.Stage) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		current, err := d.store.Get(jobID)
		if err != nil {
			return err
		}
		if current.Terminal() || stageOrder[current.CurrentStage] > stageOrder[through] {
			return nil
		}

		snap, err := d.store.BeginStage(jobID)
		switch {
		case errors.Is(err, job.ErrAttemptsExhausted):
			failed, ferr := d.store.FailStage(jobID, err)
			if ferr != nil {
				return ferr
			}
			d.recordJobFailed(failed)
			return fmt.Errorf("stage %s: %w", failed.CurrentStage, err)
		case errors.Is(err, job.ErrJobTerminal):
			return nil
		case err != nil:
			return err
		}

		stage := snap.CurrentStage
		if d.metrics != nil {
			d.metrics.StageAttempt(string(stage))
		}

		stageCtx, cancel := context.WithTimeout(ctx, d.cfg.StageTimeout)
		result, err := d.runStage(stageCtx, snap, workspaceID)
		cancel()

		if err != nil {
			if d.metrics != nil {
				d.metrics.StageFailure(string(stage))
			}
			d.log.Warn("stage attempt failed",
				logger.String("job_id", jobID),
				logger.String("stage", string(stage)),
				logger.Int("attempt", snap.AttemptCount),
				logger.Error(err),
			)

			failed, ferr := d.store.FailStage(jobID, err)
			if ferr != nil {
				return ferr
			}
			if failed.Status == job.StatusFailed {
				d.recordJobFailed(failed)
				return fmt.Errorf("stage %s exhausted %d attempts: %w", stage, failed.MaxAttempts, err)
			}
			if werr := d.cfg.Backoff.Wait(ctx, failed.AttemptCount); werr != nil {
				return werr
			}
			continue
		}

		completed, err := d.store.CompleteStage(jobID, stage, result)
		if err != nil {
			return err
		}

		if stage == job.StageRecommendations {
			d.broadcastTop(completed.CallID, result)
		}
		if completed.Status == job.StatusCompleted {
			if d.metrics != nil {
				d.metrics.JobCompleted()
			}
			d.log.Info("pipeline finished",
				logger.String("job_id", jobID),
				logger.String("call_id", completed.CallID),
			)
		}
	}
}

func (d *Driver) recordJobFailed(j job.Job) {
	if d.metrics != nil {
		d.metrics.JobFailed()
	}
	d.log.Error("job failed permanently",
		logger.String("job_id", j.ID),
		logger.String("call_id", j.CallID),
		logger.String("stage", string(j.CurrentStage)),
		logger.String("last_error", j.LastError),
	)
}

func (d *Driver) runStage(ctx context.Context, snap job.Job, workspaceID string) (any, error) {
	switch snap.CurrentStage {
	case job.StageTranscript:
		return d.captureWindow(ctx, snap.CallID)
	case job.StageSignals:
		return d.extractSignals(ctx, snap)
	case job.StageRecommendations:
		return d.generateRecommendations(ctx, snap, workspaceID)
	case job.StageSummary:
		return d.summarize(ctx, snap)
	default:
		return nil, fmt.Errorf("no runnable stage %q", snap.CurrentStage)
	}
}

func (d *Driver) captureWindow(ctx context.Context, callID string) (any, error) {
	window, err := d.transcripts.Window(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("load transcript window: %w", err)
	}
	if window.Empty() {
		return nil, fmt.Errorf("transcript window for call %s has no finalized speech", callID)
	}
	return window, nil
}

func (d *Driver) extractSignals(ctx context.Context, snap job.Job) (any, error) {
	window, err := d.windowArtifact(snap.ID)
	if err != nil {
		return nil, err
	}

	raw, err := d.extractor.Extract(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("extract signals: %w", err)
	}
	sigs := signals.Normalize(raw)

	for _, sig := range sigs {
		if sig.IsQuestion() {
			d.bus.Publish(events.New(events.QuestionDetected, snap.CallID, events.QuestionPayload{
				Question:   sig.Label,
				Confidence: sig.Confidence,
			}))
		}
	}
	return sigs, nil
}

// generateRecommendations answers each detected question with retrieved
// knowledge. Recommendations come out in signal order, which Normalize
// already sorted by confidence, so the first element is the broadcast pick.
func (d *Driver) generateRecommendations(ctx context.Context, snap job.Job, workspaceID string) (any, error) {
	sigs, err := d.signalsArtifact(snap.ID)
	if err != nil {
		return nil, err
	}

	recs := make([]stream.Recommendation, 0, len(sigs))
	for _, sig := range sigs {
		if !sig.IsQuestion() && sig.Type != signals.TypeObjection {
			continue
		}

		snippets, err := d.retriever.Retrieve(ctx, knowledge.Query{
			WorkspaceID:   workspaceID,
			Text:          sig.Label,
			Limit:         d.cfg.RetrievalLimit,
			MinSimilarity: d.cfg.MinSimilarity,
		})
		if err != nil {
			return nil, fmt.Errorf("retrieve knowledge for %q: %w", sig.Label, err)
		}

		suggestion, err := d.composer.Compose(ctx, sig.Label, snippets)
		if err != nil {
			return nil, fmt.Errorf("compose suggestion for %q: %w", sig.Label, err)
		}

		recs = append(recs, buildRecommendation(sig, suggestion))
		d.bus.Publish(events.New(events.SuggestionGenerated, snap.CallID, events.SuggestionPayload{
			Title:      sig.Label,
			Text:       suggestion.Text,
			Confidence: suggestion.Confidence,
		}))
	}
	return recs, nil
}

// summarize reads the window store directly rather than the transcript
// stage artifact: the artifact froze at the first pipeline pass, while the
// summary must cover everything said up to the end of the call.
func (d *Driver) summarize(ctx context.Context, snap job.Job) (any, error) {
	window, err := d.transcripts.Window(ctx, snap.CallID)
	if err != nil {
		return nil, fmt.Errorf("load transcript window: %w", err)
	}
	if window.Empty() {
		window, err = d.windowArtifact(snap.ID)
		if err != nil {
			return nil, err
		}
	}
	sigs, err := d.signalsArtifact(snap.ID)
	if err != nil {
		return nil, err
	}

	summary, err := d.composer.Summarize(ctx, window, sigs)
	if err != nil {
		return nil, fmt.Errorf("compose summary: %w", err)
	}
	return summary, nil
}

// broadcastTop emits exactly one event per recommendations completion,
// carrying the highest-confidence recommendation. No recommendations means
// no broadcast.
func (d *Driver) broadcastTop(callID string, result any) {
	recs, ok := result.([]stream.Recommendation)
	if !ok || len(recs) == 0 {
		return
	}
	d.fanout.Broadcast(callID, stream.NewRecommendationEvent(callID, recs[0]))
}

func (d *Driver) windowArtifact(jobID string) (transcript.Window, error) {
	result, ok := d.store.StageResult(jobID, job.StageTranscript)
	if !ok {
		return transcript.Window{}, fmt.Errorf("job %s has no transcript artifact", jobID)
	}
	window, ok := result.(transcript.Window)
	if !ok {
		return transcript.Window{}, fmt.Errorf("job %s transcript artifact has type %T", jobID, result)
	}
	return window, nil
}

func (d *Driver) signalsArtifact(jobID string) ([]signals.Signal, error) {
	result, ok := d.store.StageResult(jobID, job.StageSignals)
	if !ok {
		return nil, fmt.Errorf("job %s has no signals artifact", jobID)
	}
	sigs, ok := result.([]signals.Signal)
	if !ok {
		return nil, fmt.Errorf("job %s signals artifact has type %T", jobID, result)
	}
	return sigs, nil
}

// buildRecommendation maps a signal and its composed suggestion to the
// viewer-facing shape.
func buildRecommendation(sig signals.Signal, s *suggest.Suggestion) stream.Recommendation {
	category := stream.CategoryAnswer
	if sig.Type == signals.TypeObjection {
		category = stream.CategoryObjection
	}

	priority := stream.PriorityLow
	switch {
	case s.Confidence >= 0.8:
		priority = stream.PriorityHigh
	case s.Confidence >= 0.5:
		priority = stream.PriorityMedium
	}

	return stream.Recommendation{
		Title:    sig.Label,
		Message:  s.Text,
		Priority: priority,
		Category: category,
	}
}

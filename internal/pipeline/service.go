package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/callsight/callsight/internal/events"
	"github.com/callsight/callsight/internal/job"
	"github.com/callsight/callsight/internal/logger"
	"github.com/callsight/callsight/internal/transcript"
)

// worker serializes stage execution for one call. Kicks record the furthest
// stage requested so far; the loop always runs to the latest target, so a
// burst of transcript segments collapses into one pipeline pass.
type worker struct {
	callID      string
	jobID       string
	workspaceID string

	mu      sync.Mutex
	through job.Stage
	notify  chan struct{}
}

func (w *worker) kick(through job.Stage) {
	w.mu.Lock()
	if stageOrder[through] > stageOrder[w.through] {
		w.through = through
	}
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *worker) target() job.Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.through
}

// Service subscribes the pipeline to the domain event bus. It creates a job
// and a worker per call, feeds transcript segments to the window store, and
// turns call lifecycle events into pipeline runs.
type Service struct {
	driver      *Driver
	store       *job.Store
	transcripts transcript.Store
	fanout      Fanout
	bus         *events.Bus
	log         logger.Logger

	defaultWorkspace string

	mu      sync.Mutex
	workers map[string]*worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDefaultWorkspace sets the workspace assumed for calls whose start
// event never arrived.
func WithDefaultWorkspace(id string) ServiceOption {
	return func(s *Service) {
		s.defaultWorkspace = id
	}
}

// NewService wires the pipeline to its collaborators.
func NewService(driver *Driver, store *job.Store, transcripts transcript.Store, fanout Fanout, bus *events.Bus, log logger.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		driver:           driver,
		store:            store,
		transcripts:      transcripts,
		fanout:           fanout,
		bus:              bus,
		log:              log,
		defaultWorkspace: "default",
		workers:          make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the bus subscriptions. Workers run until Close or until
// ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.bus.Subscribe(s.ctx, events.CallStarted, s.handleCallStarted)
	s.bus.Subscribe(s.ctx, events.TranscriptReceived, s.handleTranscript)
	s.bus.Subscribe(s.ctx, events.CallEnded, s.handleCallEnded)
}

// Close stops all workers and waits for in-flight stage runs to finish.
func (s *Service) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Service) handleCallStarted(_ context.Context, ev events.Event) {
	workspaceID := s.defaultWorkspace
	if p, ok := ev.Payload.(events.CallStartedPayload); ok && p.WorkspaceID != "" {
		workspaceID = p.WorkspaceID
	}
	if _, err := s.ensureWorker(ev.SessionID, workspaceID); err != nil {
		s.log.Error("call setup failed",
			logger.String("call_id", ev.SessionID),
			logger.Error(err),
		)
	}
}

func (s *Service) handleTranscript(ctx context.Context, ev events.Event) {
	p, ok := ev.Payload.(events.TranscriptPayload)
	if !ok {
		s.log.Warn("transcript event with unexpected payload",
			logger.String("call_id", ev.SessionID),
		)
		return
	}

	segment := transcript.Segment{
		Text:       p.Text,
		Speaker:    p.Speaker,
		IsFinal:    p.IsFinal,
		Confidence: p.Confidence,
		Timestamp:  ev.Timestamp,
	}
	if segment.Timestamp.IsZero() {
		segment.Timestamp = time.Now().UTC()
	}
	if err := s.transcripts.Append(ctx, ev.SessionID, segment); err != nil {
		s.log.Error("transcript append failed",
			logger.String("call_id", ev.SessionID),
			logger.Error(err),
		)
		return
	}

	// Partial segments only update the window; finals trigger processing.
	if !p.IsFinal {
		return
	}
	w, err := s.ensureWorker(ev.SessionID, s.defaultWorkspace)
	if err != nil {
		s.log.Error("worker setup failed",
			logger.String("call_id", ev.SessionID),
			logger.Error(err),
		)
		return
	}
	w.kick(job.StageRecommendations)
}

func (s *Service) handleCallEnded(_ context.Context, ev events.Event) {
	s.fanout.CloseSession(ev.SessionID)

	// Revive a retired worker only if the call has an active job; a call
	// that never produced one has nothing to summarize.
	j, err := s.store.GetByCall(ev.SessionID)
	if err != nil || j.Terminal() {
		s.log.Debug("call ended without an active job",
			logger.String("call_id", ev.SessionID),
		)
		return
	}

	w, err := s.ensureWorker(ev.SessionID, s.defaultWorkspace)
	if err != nil {
		s.log.Error("worker setup failed",
			logger.String("call_id", ev.SessionID),
			logger.Error(err),
		)
		return
	}
	w.kick(job.StageSummary)
}

// ensureWorker returns the call's worker, creating its job and goroutine on
// first sight. Job creation is idempotent, so racing callers converge on
// the same job.
func (s *Service) ensureWorker(callID, workspaceID string) (*worker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, ok := s.workers[callID]; ok {
		return w, nil
	}

	j, err := s.store.Create(callID)
	if err != nil {
		return nil, err
	}

	w := &worker{
		callID:      callID,
		jobID:       j.ID,
		workspaceID: workspaceID,
		notify:      make(chan struct{}, 1),
	}
	s.workers[callID] = w

	s.wg.Add(1)
	go s.runWorker(w)

	s.log.Info("pipeline worker started",
		logger.String("call_id", callID),
		logger.String("job_id", j.ID),
		logger.String("workspace_id", workspaceID),
	)
	return w, nil
}

func (s *Service) runWorker(w *worker) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-w.notify:
		}

		err := s.driver.RunThrough(s.ctx, w.jobID, w.workspaceID, w.target())
		if err != nil && s.ctx.Err() == nil {
			s.log.Warn("pipeline run stopped",
				logger.String("call_id", w.callID),
				logger.String("job_id", w.jobID),
				logger.Error(err),
			)
		}

		if s.retireIfTerminal(w) {
			return
		}
	}
}

// retireIfTerminal removes the worker once its job cannot advance further.
func (s *Service) retireIfTerminal(w *worker) bool {
	j, err := s.store.Get(w.jobID)
	if err != nil || !j.Terminal() {
		return false
	}

	s.mu.Lock()
	delete(s.workers, w.callID)
	s.mu.Unlock()

	s.log.Info("pipeline worker retired",
		logger.String("call_id", w.callID),
		logger.String("job_id", w.jobID),
		logger.String("status", string(j.Status)),
	)
	return true
}

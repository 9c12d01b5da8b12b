package job

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/callsight/callsight/internal/logger"
)

// DefaultMaxAttempts is the per-stage attempt cap applied when none is
// configured.
const DefaultMaxAttempts = 3

// record is the mutable, lock-guarded state behind a Job snapshot. All stage
// transitions for one job serialize on its mutex; different jobs never share
// a lock.
type record struct {
	mu sync.Mutex

	id           string
	callID       string
	status       Status
	currentStage Stage
	progress     Progress
	attemptCount int
	maxAttempts  int
	lastError    string
	createdAt    time.Time
	startedAt    *time.Time
	completedAt  *time.Time

	// results holds the artifact produced by each completed stage. Written
	// once per stage, alongside its flag.
	results map[Stage]any
}

func (r *record) snapshot() Job {
	return Job{
		ID:           r.id,
		CallID:       r.callID,
		Status:       r.status,
		CurrentStage: r.currentStage,
		Progress:     r.progress,
		AttemptCount: r.attemptCount,
		MaxAttempts:  r.maxAttempts,
		LastError:    r.lastError,
		CreatedAt:    r.createdAt,
		StartedAt:    r.startedAt,
		CompletedAt:  r.completedAt,
	}
}

func (r *record) terminal() bool {
	return r.status == StatusCompleted || r.status == StatusFailed
}

// Store owns the authoritative stage, attempt, and error state for every
// job in the process.
type Store struct {
	mu          sync.RWMutex
	jobs        map[string]*record
	byCall      map[string]string
	maxAttempts int
	log         logger.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxAttempts sets the per-stage attempt cap applied to new jobs.
func WithMaxAttempts(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewStore creates an empty job store.
func NewStore(log logger.Logger, opts ...StoreOption) *Store {
	s := &Store{
		jobs:        make(map[string]*record),
		byCall:      make(map[string]string),
		maxAttempts: DefaultMaxAttempts,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create returns the existing non-terminal job for callID if one exists,
// otherwise creates a new pending job at the transcript stage. Creation is
// idempotent per call: at most one active job per callID.
func (s *Store) Create(callID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if jobID, ok := s.byCall[callID]; ok {
		if r := s.jobs[jobID]; r != nil {
			r.mu.Lock()
			terminal := r.terminal()
			snap := r.snapshot()
			r.mu.Unlock()
			if !terminal {
				return snap, nil
			}
		}
	}

	r := &record{
		id:           uuid.NewString(),
		callID:       callID,
		status:       StatusPending,
		currentStage: StageTranscript,
		maxAttempts:  s.maxAttempts,
		createdAt:    time.Now().UTC(),
		results:      make(map[Stage]any),
	}
	s.jobs[r.id] = r
	s.byCall[callID] = r.id

	s.log.Info("job created",
		logger.String("job_id", r.id),
		logger.String("call_id", callID),
		logger.Int("max_attempts", r.maxAttempts),
	)
	return r.snapshot(), nil
}

// Get returns the job with the given ID.
func (s *Store) Get(jobID string) (Job, error) {
	r, err := s.lookup(jobID)
	if err != nil {
		return Job{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot(), nil
}

// GetByCall returns the most recent job for the given call ID.
func (s *Store) GetByCall(callID string) (Job, error) {
	s.mu.RLock()
	jobID, ok := s.byCall[callID]
	s.mu.RUnlock()
	if !ok {
		return Job{}, ErrNotFound
	}
	return s.Get(jobID)
}

// BeginStage starts an attempt of the job's current stage. The first call
// transitions pending to running. Each call increments the stage's attempt
// counter; when the counter passes the cap the call fails with
// ErrAttemptsExhausted and the caller must invoke FailStage.
func (s *Store) BeginStage(jobID string) (Job, error) {
	r, err := s.lookup(jobID)
	if err != nil {
		return Job{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terminal() {
		return r.snapshot(), ErrJobTerminal
	}

	if r.status == StatusPending {
		r.status = StatusRunning
		now := time.Now().UTC()
		r.startedAt = &now
	}

	r.attemptCount++
	if r.attemptCount > r.maxAttempts {
		return r.snapshot(), ErrAttemptsExhausted
	}
	return r.snapshot(), nil
}

// CompleteStage marks the given stage done and advances the job to the next
// stage. Completing an already-completed stage is a no-op returning the
// current state unchanged, so a driver may safely retry a stage call that
// already succeeded. Completing the summary stage finishes the job.
func (s *Store) CompleteStage(jobID string, stage Stage, result any) (Job, error) {
	r, err := s.lookup(jobID)
	if err != nil {
		return Job{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Idempotence: the flag and its artifact are written exactly once.
	if r.progress.done(stage) {
		return r.snapshot(), nil
	}
	if r.terminal() {
		return r.snapshot(), ErrJobTerminal
	}
	if stage != r.currentStage {
		return r.snapshot(), ErrStageMismatch
	}

	r.progress.mark(stage)
	if result != nil {
		r.results[stage] = result
	}
	r.attemptCount = 0
	r.lastError = ""
	r.currentStage = stage.next()

	if stage == StageSummary {
		r.status = StatusCompleted
		now := time.Now().UTC()
		r.completedAt = &now
		s.log.Info("job completed",
			logger.String("job_id", r.id),
			logger.String("call_id", r.callID),
		)
	}
	return r.snapshot(), nil
}

// FailStage records a failed attempt of the current stage. When the stage's
// attempts are used up the job transitions to failed and accepts no further
// transitions; otherwise it stays running at the same stage for a retry.
func (s *Store) FailStage(jobID string, cause error) (Job, error) {
	r, err := s.lookup(jobID)
	if err != nil {
		return Job{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.terminal() {
		return r.snapshot(), ErrJobTerminal
	}

	if cause != nil {
		r.lastError = cause.Error()
	}

	if r.attemptCount >= r.maxAttempts {
		r.status = StatusFailed
		now := time.Now().UTC()
		r.completedAt = &now
		s.log.Warn("job failed",
			logger.String("job_id", r.id),
			logger.String("call_id", r.callID),
			logger.String("stage", string(r.currentStage)),
			logger.Int("attempts", r.attemptCount),
			logger.String("last_error", r.lastError),
		)
	}
	return r.snapshot(), nil
}

// StageResult returns the artifact stored when the given stage completed.
func (s *Store) StageResult(jobID string, stage Stage) (any, bool) {
	r, err := s.lookup(jobID)
	if err != nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.results[stage]
	return result, ok
}

func (s *Store) lookup(jobID string) (*record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

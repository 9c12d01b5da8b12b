//nolint:testpackage // exercising unexported stage logic
package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsight/callsight/internal/events"
	"github.com/callsight/callsight/internal/job"
	"github.com/callsight/callsight/internal/knowledge"
	"github.com/callsight/callsight/internal/logger"
	"github.com/callsight/callsight/internal/retry"
	"github.com/callsight/callsight/internal/signals"
	"github.com/callsight/callsight/internal/stream"
	"github.com/callsight/callsight/internal/suggest"
	"github.com/callsight/callsight/internal/transcript"
)

type mockExtractor struct {
	fn func(ctx context.Context, w transcript.Window) ([]signals.Signal, error)
}

func (m *mockExtractor) Extract(ctx context.Context, w transcript.Window) ([]signals.Signal, error) {
	return m.fn(ctx, w)
}

type mockRetriever struct {
	fn func(ctx context.Context, q knowledge.Query) ([]knowledge.Snippet, error)
}

func (m *mockRetriever) Retrieve(ctx context.Context, q knowledge.Query) ([]knowledge.Snippet, error) {
	if m.fn == nil {
		return nil, nil
	}
	return m.fn(ctx, q)
}

type mockComposer struct {
	composeFn   func(ctx context.Context, question string, snippets []knowledge.Snippet) (*suggest.Suggestion, error)
	summarizeFn func(ctx context.Context, w transcript.Window, sigs []signals.Signal) (string, error)
}

func (m *mockComposer) Compose(ctx context.Context, question string, snippets []knowledge.Snippet) (*suggest.Suggestion, error) {
	return m.composeFn(ctx, question, snippets)
}

func (m *mockComposer) Summarize(ctx context.Context, w transcript.Window, sigs []signals.Signal) (string, error) {
	if m.summarizeFn == nil {
		return "summary", nil
	}
	return m.summarizeFn(ctx, w, sigs)
}

type mockFanout struct {
	mu        sync.Mutex
	broadcast []stream.Event
	closed    []string
}

func (m *mockFanout) Broadcast(sessionID string, event stream.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcast = append(m.broadcast, event)
}

func (m *mockFanout) CloseSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, sessionID)
}

func (m *mockFanout) events() []stream.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stream.Event(nil), m.broadcast...)
}

func (m *mockFanout) closedSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.closed...)
}

type fixture struct {
	store       *job.Store
	transcripts *transcript.MemoryStore
	fanout      *mockFanout
	bus         *events.Bus
	driver      *Driver
}

func questionSignal(label string, confidence float64) signals.Signal {
	return signals.Signal{
		Type:       signals.TypeNextQuestion,
		Label:      label,
		Confidence: confidence,
		Evidence:   []signals.Evidence{{Utterance: 0, Quote: label}},
	}
}

func newFixture(t *testing.T, extractor signals.Extractor, retriever knowledge.Retriever, composer suggest.Composer) *fixture {
	t.Helper()
	log := logger.NewNop()
	f := &fixture{
		store:       job.NewStore(log),
		transcripts: transcript.NewMemoryStore(),
		fanout:      &mockFanout{},
		bus:         events.NewBus(log),
	}
	if extractor == nil {
		extractor = &mockExtractor{fn: func(context.Context, transcript.Window) ([]signals.Signal, error) {
			return []signals.Signal{questionSignal("Do you support SSO?", 0.9)}, nil
		}}
	}
	if retriever == nil {
		retriever = &mockRetriever{}
	}
	if composer == nil {
		composer = &mockComposer{composeFn: func(_ context.Context, question string, _ []knowledge.Snippet) (*suggest.Suggestion, error) {
			return &suggest.Suggestion{Text: "answer to " + question, Confidence: 0.85}, nil
		}}
	}
	f.driver = NewDriver(
		f.store, f.transcripts, extractor, retriever, composer,
		f.fanout, f.bus, nil, log,
		Config{
			StageTimeout: time.Second,
			Backoff:      retry.Backoff{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		},
	)
	return f
}

func (f *fixture) seedCall(t *testing.T, callID string) job.Job {
	t.Helper()
	require.NoError(t, f.transcripts.Append(context.Background(), callID, transcript.Segment{
		Text:      "Do you support SSO?",
		Speaker:   "prospect",
		IsFinal:   true,
		Timestamp: time.Now(),
	}))
	j, err := f.store.Create(callID)
	require.NoError(t, err)
	return j
}

func TestDriver_RunsFullPipeline(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	j := f.seedCall(t, "call-1")

	err := f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageSummary)
	require.NoError(t, err)

	final, err := f.store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusCompleted, final.Status)
	assert.Equal(t, job.StageDone, final.CurrentStage)
	assert.True(t, final.Progress.Summary)

	summary, ok := f.store.StageResult(j.ID, job.StageSummary)
	require.True(t, ok)
	assert.Equal(t, "summary", summary)
}

func TestDriver_BroadcastsExactlyOnceOnRecommendations(t *testing.T) {
	f := newFixture(t, &mockExtractor{fn: func(context.Context, transcript.Window) ([]signals.Signal, error) {
		return []signals.Signal{
			questionSignal("Do you support SSO?", 0.9),
			questionSignal("What about pricing?", 0.6),
		}, nil
	}}, nil, nil)
	j := f.seedCall(t, "call-1")

	err := f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageRecommendations)
	require.NoError(t, err)

	broadcasts := f.fanout.events()
	require.Len(t, broadcasts, 1)
	assert.Equal(t, stream.EventRecommendationGenerated, broadcasts[0].Type)
	assert.Equal(t, "call-1", broadcasts[0].SessionID)
	require.NotNil(t, broadcasts[0].Recommendation)
	// Highest-confidence signal wins the broadcast slot.
	assert.Equal(t, "Do you support SSO?", broadcasts[0].Recommendation.Title)
	assert.Equal(t, stream.PriorityHigh, broadcasts[0].Recommendation.Priority)
}

func TestDriver_StopsAtRequestedStage(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	j := f.seedCall(t, "call-1")

	err := f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageSignals)
	require.NoError(t, err)

	snap, err := f.store.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, job.StageRecommendations, snap.CurrentStage)
	assert.True(t, snap.Progress.Signals)
	assert.False(t, snap.Progress.Recommendations)
	assert.Equal(t, job.StatusRunning, snap.Status)
}

func TestDriver_RetriesThenSucceeds(t *testing.T) {
	attempts := 0
	f := newFixture(t, &mockExtractor{fn: func(context.Context, transcript.Window) ([]signals.Signal, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("model overloaded")
		}
		return []signals.Signal{questionSignal("Do you support SSO?", 0.9)}, nil
	}}, nil, nil)
	j := f.seedCall(t, "call-1")

	err := f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageSignals)
	require.NoError(t, err)

	assert.Equal(t, 3, attempts)
	snap, err := f.store.Get(j.ID)
	require.NoError(t, err)
	assert.True(t, snap.Progress.Signals)
	// Attempt counter resets on completion.
	assert.Equal(t, 0, snap.AttemptCount)
	assert.Empty(t, snap.LastError)
}

func TestDriver_ExhaustedStageFailsJobAndFreezesStage(t *testing.T) {
	f := newFixture(t, &mockExtractor{fn: func(context.Context, transcript.Window) ([]signals.Signal, error) {
		return nil, errors.New("model overloaded")
	}}, nil, nil)
	j := f.seedCall(t, "call-1")

	err := f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageSummary)
	require.Error(t, err)

	snap, getErr := f.store.Get(j.ID)
	require.NoError(t, getErr)
	assert.Equal(t, job.StatusFailed, snap.Status)
	assert.Equal(t, job.StageSignals, snap.CurrentStage)
	assert.Contains(t, snap.LastError, "model overloaded")
	assert.True(t, snap.Progress.Transcript)
	assert.False(t, snap.Progress.Signals)
	assert.Empty(t, f.fanout.events())

	// A later kick cannot revive the job.
	err = f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageSummary)
	require.NoError(t, err)
	after, getErr := f.store.Get(j.ID)
	require.NoError(t, getErr)
	assert.Equal(t, snap.CompletedAt, after.CompletedAt)
}

func TestDriver_StageTimeoutCountsAsFailure(t *testing.T) {
	f := newFixture(t, &mockExtractor{fn: func(ctx context.Context, _ transcript.Window) ([]signals.Signal, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}, nil, nil)
	f.driver.cfg.StageTimeout = 5 * time.Millisecond
	j := f.seedCall(t, "call-1")

	err := f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageSummary)
	require.Error(t, err)

	snap, getErr := f.store.Get(j.ID)
	require.NoError(t, getErr)
	assert.Equal(t, job.StatusFailed, snap.Status)
	assert.Contains(t, snap.LastError, context.DeadlineExceeded.Error())
}

func TestDriver_EmptyWindowFailsTranscriptStage(t *testing.T) {
	f := newFixture(t, nil, nil, nil)
	j, err := f.store.Create("call-1")
	require.NoError(t, err)

	err = f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageSummary)
	require.Error(t, err)

	snap, getErr := f.store.Get(j.ID)
	require.NoError(t, getErr)
	assert.Equal(t, job.StatusFailed, snap.Status)
	assert.Equal(t, job.StageTranscript, snap.CurrentStage)
}

func TestDriver_NoActionableSignalsMeansNoBroadcast(t *testing.T) {
	f := newFixture(t, &mockExtractor{fn: func(context.Context, transcript.Window) ([]signals.Signal, error) {
		return []signals.Signal{{
			Type:       signals.TypeTopic,
			Label:      "integration discussion",
			Confidence: 0.6,
			Evidence:   []signals.Evidence{{Utterance: 0, Quote: "api"}},
		}}, nil
	}}, nil, nil)
	j := f.seedCall(t, "call-1")

	err := f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageRecommendations)
	require.NoError(t, err)

	assert.Empty(t, f.fanout.events())
	snap, getErr := f.store.Get(j.ID)
	require.NoError(t, getErr)
	assert.True(t, snap.Progress.Recommendations)
}

func TestDriver_RetrieverErrorFailsRecommendationsOnly(t *testing.T) {
	f := newFixture(t, nil, &mockRetriever{fn: func(context.Context, knowledge.Query) ([]knowledge.Snippet, error) {
		return nil, errors.New("search unavailable")
	}}, nil)
	j := f.seedCall(t, "call-1")

	err := f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageSummary)
	require.Error(t, err)

	snap, getErr := f.store.Get(j.ID)
	require.NoError(t, getErr)
	assert.Equal(t, job.StageRecommendations, snap.CurrentStage)
	// Earlier stages keep their completions.
	assert.True(t, snap.Progress.Transcript)
	assert.True(t, snap.Progress.Signals)
}

func TestDriver_SummaryCoversSegmentsAfterRecommendations(t *testing.T) {
	var summarized transcript.Window
	composer := &mockComposer{
		composeFn: func(_ context.Context, question string, _ []knowledge.Snippet) (*suggest.Suggestion, error) {
			return &suggest.Suggestion{Text: "answer to " + question, Confidence: 0.85}, nil
		},
		summarizeFn: func(_ context.Context, w transcript.Window, _ []signals.Signal) (string, error) {
			summarized = w
			return "summary", nil
		},
	}
	f := newFixture(t, nil, nil, composer)
	j := f.seedCall(t, "call-1")

	require.NoError(t, f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageRecommendations))

	// Speech that arrives after the first pipeline pass still belongs in
	// the end-of-call summary.
	require.NoError(t, f.transcripts.Append(context.Background(), "call-1", transcript.Segment{
		Text:      "Let's schedule a follow-up for Tuesday.",
		Speaker:   "rep",
		IsFinal:   true,
		Timestamp: time.Now(),
	}))

	require.NoError(t, f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageSummary))

	require.Len(t, summarized.Segments, 2)
	assert.Contains(t, summarized.Text(), "schedule a follow-up")
}

func TestDriver_SummaryFallsBackToCapturedWindowWhenStoreEmpty(t *testing.T) {
	var summarized transcript.Window
	composer := &mockComposer{
		composeFn: func(_ context.Context, question string, _ []knowledge.Snippet) (*suggest.Suggestion, error) {
			return &suggest.Suggestion{Text: "answer to " + question, Confidence: 0.85}, nil
		},
		summarizeFn: func(_ context.Context, w transcript.Window, _ []signals.Signal) (string, error) {
			summarized = w
			return "summary", nil
		},
	}
	f := newFixture(t, nil, nil, composer)
	j := f.seedCall(t, "call-1")

	require.NoError(t, f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageRecommendations))
	require.NoError(t, f.transcripts.Clear(context.Background(), "call-1"))

	require.NoError(t, f.driver.RunThrough(context.Background(), j.ID, "ws-1", job.StageSummary))

	require.Len(t, summarized.Segments, 1)
	assert.Contains(t, summarized.Text(), "Do you support SSO?")
}

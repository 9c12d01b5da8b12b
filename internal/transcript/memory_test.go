//nolint:testpackage // Testing internal store requires same package access
package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendAndWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := t.Context()

	require.NoError(t, store.Append(ctx, "call-1", Segment{
		Text: "hi, thanks for joining", Speaker: "rep", IsFinal: true, Confidence: 0.95, Timestamp: time.Now(),
	}))
	require.NoError(t, store.Append(ctx, "call-1", Segment{
		Text: "what does pricing look", Speaker: "prospect", IsFinal: false, Confidence: 0.4, Timestamp: time.Now(),
	}))
	require.NoError(t, store.Append(ctx, "call-1", Segment{
		Text: "what does pricing look like for ten seats?", Speaker: "prospect", IsFinal: true, Confidence: 0.92, Timestamp: time.Now(),
	}))

	window, err := store.Window(ctx, "call-1")
	require.NoError(t, err)
	assert.Len(t, window.Segments, 3)
	assert.False(t, window.Empty())

	text := window.Text()
	assert.Contains(t, text, "[0] rep: hi, thanks for joining")
	assert.Contains(t, text, "[1] prospect: what does pricing look like for ten seats?")
	assert.NotContains(t, text, "what does pricing look\n", "partials are excluded from the rendered window")
}

func TestMemoryStore_WindowIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := t.Context()

	require.NoError(t, store.Append(ctx, "call-1", Segment{Text: "a", IsFinal: true}))

	window, err := store.Window(ctx, "call-2")
	require.NoError(t, err)
	assert.Empty(t, window.Segments)
	assert.True(t, window.Empty())
}

func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryStore()
	ctx := t.Context()

	require.NoError(t, store.Append(ctx, "call-1", Segment{Text: "a", IsFinal: true}))
	require.NoError(t, store.Clear(ctx, "call-1"))

	window, err := store.Window(ctx, "call-1")
	require.NoError(t, err)
	assert.True(t, window.Empty())
}

func TestWindow_EmptyWithOnlyPartials(t *testing.T) {
	window := Window{CallID: "call-1", Segments: []Segment{
		{Text: "um", IsFinal: false},
	}}
	assert.True(t, window.Empty())
}

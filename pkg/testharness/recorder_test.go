package testharness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptStore_AppendAndLines(t *testing.T) {
	store, err := OpenTranscriptStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	now := time.Unix(1700000000, 0)
	require.NoError(t, store.Append("sess-1", "out", `{"type":"user"}`, now))
	require.NoError(t, store.Append("sess-1", "in", `{"type":"assistant"}`, now.Add(time.Second)))
	require.NoError(t, store.Append("sess-2", "out", `{"type":"user"}`, now))

	lines, err := store.Lines("sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"type":"user"}`, `{"type":"assistant"}`}, lines)

	lines, err = store.Lines("sess-2")
	require.NoError(t, err)
	assert.Equal(t, []string{`{"type":"user"}`}, lines)

	lines, err = store.Lines("missing")
	require.NoError(t, err)
	assert.Empty(t, lines)
}

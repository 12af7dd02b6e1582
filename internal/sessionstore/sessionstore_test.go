package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadSession(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/sessions")
	ctx := context.Background()

	_, ok, err := s.LoadSession(ctx, "sess-1", "planner")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveSession(ctx, "sess-1", "hello", "hi there"))
	require.NoError(t, s.SaveSession(ctx, "sess-1", "more", "more reply"))

	history, ok, err := s.LoadSession(ctx, "sess-1", "planner")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Request)
	assert.Equal(t, "more reply", history[1].Response)
}

func TestCleanupRemovesAgedSessions(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/sessions")
	ctx := context.Background()
	require.NoError(t, s.SaveSession(ctx, "old", "q", "a"))

	old := time.Now().Add(-60 * 24 * time.Hour)
	require.NoError(t, fs.Chtimes(s.path("old"), old, old))

	require.NoError(t, s.CleanupOldSessions(ctx))

	_, ok, err := s.LoadSession(ctx, "old", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

package tasklog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndRecent(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	require.NoError(t, l.Append(ctx, "1", "chat-1", "hello", "hi there", true))
	require.NoError(t, l.Append(ctx, "2", "chat-1", "status?", "all good", true))

	recent, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "2", recent[0].TaskID)
	require.Equal(t, "1", recent[1].TaskID)
}

func TestRecentRespectsLimit(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Append(ctx, "x", "chat", "t", "r", true))
	}

	recent, err := l.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

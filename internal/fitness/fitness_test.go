package fitness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "fitness.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordAndHistory(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	_, err := l.Record(ctx, 0, "rev1", 0.5, 100, true)
	require.NoError(t, err)
	_, err = l.Record(ctx, 1, "rev2", 0.8, 120, true)
	require.NoError(t, err)

	hist, err := l.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, 1, hist[0].Generation)
	require.Equal(t, 0, hist[1].Generation)
}

func TestTopOrdersByScoreDescending(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	_, err := l.Record(ctx, 0, "rev1", 0.2, 50, true)
	require.NoError(t, err)
	_, err = l.Record(ctx, 1, "rev2", 0.9, 60, true)
	require.NoError(t, err)
	_, err = l.Record(ctx, 2, "rev3", 0.5, 70, false)
	require.NoError(t, err)

	top, err := l.Top(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 3)
	require.Equal(t, 0.9, top[0].Score)
	require.Equal(t, 0.5, top[1].Score)
	require.Equal(t, 0.2, top[2].Score)
}

func TestGenerationStatsMissingGenerationIsNotOK(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	_, ok, err := l.GenerationStats(ctx, 99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGenerationStatsAggregates(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	_, err := l.Record(ctx, 3, "rev1", 0.2, 50, true)
	require.NoError(t, err)
	_, err = l.Record(ctx, 3, "rev2", 0.8, 60, true)
	require.NoError(t, err)

	stats, ok, err := l.GenerationStats(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, stats.Count)
	require.Equal(t, 0.2, stats.MinScore)
	require.Equal(t, 0.8, stats.MaxScore)
	require.InDelta(t, 0.5, stats.AvgScore, 1e-9)
}

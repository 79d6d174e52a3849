package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshotReflectsLatestTick(t *testing.T) {
	s := New()
	s.UpdateTick(PhaseRunning, 3, "rev-abc", 12.5, true)
	snap := s.Snapshot()
	require.Equal(t, PhaseRunning, snap.Phase)
	require.Equal(t, 3, snap.Generation)
	require.Equal(t, "rev-abc", snap.LastGoodRevision)
	require.True(t, snap.Alive)
}

func TestKillIsEdgeTriggered(t *testing.T) {
	s := New()
	require.False(t, s.TakeKill())
	s.SetKill()
	require.True(t, s.TakeKill())
	require.False(t, s.TakeKill())
}

func TestPauseIsLevelTriggered(t *testing.T) {
	s := New()
	require.False(t, s.Pause())
	s.SetPause(true)
	require.True(t, s.Pause())
	require.True(t, s.Pause())
	s.SetPause(false)
	require.False(t, s.Pause())
}

func TestQueueIsFIFO(t *testing.T) {
	s := New()
	s.Enqueue(Task{ID: "1", Text: "first"})
	s.Enqueue(Task{ID: "2", Text: "second"})
	require.Equal(t, 2, s.QueueDepth())

	first, ok := s.Dequeue()
	require.True(t, ok)
	require.Equal(t, "1", first.ID)

	second, ok := s.Dequeue()
	require.True(t, ok)
	require.Equal(t, "2", second.ID)

	_, ok = s.Dequeue()
	require.False(t, ok)
}

func TestSnapshotIncludesGenerationParamsAndOutcome(t *testing.T) {
	s := New()
	start := time.Now()
	s.SetGenerationParams(0.15, 120, start)
	s.SetOutcome(0.87, true)

	snap := s.Snapshot()
	require.Equal(t, 0.15, snap.MutationRate)
	require.Equal(t, 120, snap.MaxRuntimeSec)
	require.Equal(t, start, snap.StartWallTime)
	require.Equal(t, 0.87, snap.LastScore)
	require.True(t, snap.LastSurvived)
}

func TestP0ActiveIsTaskExecutorOwned(t *testing.T) {
	s := New()
	require.False(t, s.P0Active())
	s.SetP0Active(true)
	require.True(t, s.P0Active())
	s.SetP0Active(false)
	require.False(t, s.P0Active())
}

func TestConcurrentSnapshotsDoNotRace(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(g int) {
			defer wg.Done()
			s.UpdateTick(PhaseRunning, g, "rev", float64(g), true)
		}(i)
		go func() {
			defer wg.Done()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()
}

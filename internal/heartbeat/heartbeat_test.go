package heartbeat

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsAliveTrueForFreshHeartbeatOfCurrentProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heartbeat")
	require.NoError(t, WriteHeartbeat(path, os.Getpid()))

	m := NewMonitor(path, 5)
	require.True(t, m.IsAlive())
}

func TestIsAliveFalseWhenFileMissing(t *testing.T) {
	m := NewMonitor(filepath.Join(t.TempDir(), "nope"), 5)
	require.False(t, m.IsAlive())
}

func TestIsAliveFalseWhenStale(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heartbeat")
	content := fmt.Sprintf("%d\n%f\n", os.Getpid(), float64(time.Now().Add(-1*time.Hour).UnixNano())/1e9)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	m := NewMonitor(path, 5)
	require.False(t, m.IsAlive())
}

func TestIsAliveFalseForMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heartbeat")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0o644))

	m := NewMonitor(path, 5)
	require.False(t, m.IsAlive())
}

func TestWaitForHeartbeatDetectsLateWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "heartbeat")
	m := NewMonitor(path, 5)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = WriteHeartbeat(path, os.Getpid())
	}()

	require.True(t, m.WaitForHeartbeat(2*time.Second))
}

func TestWaitForHeartbeatTimesOut(t *testing.T) {
	m := NewMonitor(filepath.Join(t.TempDir(), "nope"), 5)
	require.False(t, m.WaitForHeartbeat(200*time.Millisecond))
}

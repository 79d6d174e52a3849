// Package heartbeat implements the file-based liveness protocol
// between the supervisor and the worker process (spec §4.1).
package heartbeat

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Monitor polls a heartbeat file to decide whether the worker process
// behind it is still alive.
type Monitor struct {
	Path       string
	TimeoutSec float64
}

// NewMonitor returns a Monitor for path with the given freshness
// timeout.
func NewMonitor(path string, timeoutSec float64) *Monitor {
	return &Monitor{Path: path, TimeoutSec: timeoutSec}
}

// Read parses the heartbeat file and returns (pid, timestamp). Any
// I/O or parse failure is reported as ok=false rather than an error —
// malformed or missing heartbeats are simply "not alive" (spec §4.1
// Failure).
func (m *Monitor) Read() (pid int, ts float64, ok bool) {
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return 0, 0, false
	}
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	lines := make([]string, 0, 2)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return 0, 0, false
	}
	pid64, err := strconv.Atoi(lines[0])
	if err != nil {
		return 0, 0, false
	}
	tsVal, err := strconv.ParseFloat(lines[1], 64)
	if err != nil {
		return 0, 0, false
	}
	return pid64, tsVal, true
}

// IsAlive returns true iff the heartbeat file parses, is fresh, and
// the PID it names still exists.
func (m *Monitor) IsAlive() bool {
	pid, ts, ok := m.Read()
	if !ok {
		return false
	}
	if float64(time.Now().UnixNano())/1e9-ts > m.TimeoutSec {
		return false
	}
	exists, err := process.PidExists(int32(pid))
	if err != nil || !exists {
		return false
	}
	return true
}

// WaitForHeartbeat polls IsAlive every 500ms until it becomes true or
// startupTimeout elapses. Returns true if a heartbeat was detected.
func (m *Monitor) WaitForHeartbeat(startupTimeout time.Duration) bool {
	deadline := time.Now().Add(startupTimeout)
	for time.Now().Before(deadline) {
		if m.IsAlive() {
			return true
		}
		time.Sleep(500 * time.Millisecond)
	}
	return false
}

// WriteHeartbeat atomically (write-then-rename) writes a two-line
// heartbeat file containing pid and the current Unix timestamp. This
// is the worker-side half of the protocol; Protea's supervisor never
// calls it itself but exposes it for test fixtures and for any
// Go-implemented worker stand-in.
func WriteHeartbeat(path string, pid int) error {
	content := fmt.Sprintf("%d\n%f\n", pid, float64(time.Now().UnixNano())/1e9)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

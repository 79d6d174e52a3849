// Package state holds the shared mutable supervisor state (spec
// §4.6): a mutex-guarded snapshot, edge/level-triggered event flags,
// and a FIFO task queue consumed by the task executor.
package state

import (
	"sync"
	"time"
)

// Phase is the kernel's current generation-lifecycle state (§4.12).
type Phase string

const (
	PhaseStarting   Phase = "STARTING"
	PhaseRunning    Phase = "RUNNING"
	PhaseEvaluating Phase = "EVALUATING"
	PhaseRecording  Phase = "RECORDING"
	PhaseEvolving   Phase = "EVOLVING"
	PhaseRestarting Phase = "RESTARTING"
)

// Snapshot is a consistent point-in-time read of the supervisor's
// fields, returned under the lock so no field is torn relative to
// another.
type Snapshot struct {
	Phase            Phase
	Generation       int
	LastGoodRevision string
	ElapsedSec       float64
	Alive            bool
	Pause            bool
	P0Active         bool
	QueueDepth       int
	UpdatedAt        time.Time

	// StartWallTime, MutationRate, and MaxRuntimeSec are committed once
	// per generation, at spawn. LastScore/LastSurvived are committed
	// once the generation's outcome is recorded. All five are part of
	// spec §3's Supervisor Snapshot data model.
	StartWallTime time.Time
	MutationRate  float64
	MaxRuntimeSec int
	LastScore     float64
	LastSurvived  bool
}

// Task is a unit of work enqueued by the chat operator and consumed
// by the task executor (§4.10).
type Task struct {
	ID        string
	ChatID    string
	Text      string
	CreatedAt time.Time
}

// State is the shared object described by §4.6. All exported methods
// are safe for concurrent use.
type State struct {
	mu sync.Mutex

	phase            Phase
	generation       int
	lastGoodRevision string
	elapsedSec       float64
	alive            bool
	pause            bool
	p0Active         bool
	updatedAt        time.Time

	startWallTime time.Time
	mutationRate  float64
	maxRuntimeSec int
	lastScore     float64
	lastSurvived  bool

	// kill is edge-triggered: SetKill raises it, the kernel clears it
	// with TakeKill as the very first thing it does when acting on it,
	// so a single kill request never causes a repeated restart.
	kill bool

	queueMu sync.Mutex
	queue   []Task
}

// New returns a State initialized to STARTING, generation 0.
func New() *State {
	return &State{
		phase:     PhaseStarting,
		updatedAt: time.Now(),
	}
}

// Snapshot returns a consistent read of all fields.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueMu.Lock()
	depth := len(s.queue)
	s.queueMu.Unlock()
	return Snapshot{
		Phase:            s.phase,
		Generation:       s.generation,
		LastGoodRevision: s.lastGoodRevision,
		ElapsedSec:       s.elapsedSec,
		Alive:            s.alive,
		Pause:            s.pause,
		P0Active:         s.p0Active,
		QueueDepth:       depth,
		UpdatedAt:        s.updatedAt,
		StartWallTime:    s.startWallTime,
		MutationRate:     s.mutationRate,
		MaxRuntimeSec:    s.maxRuntimeSec,
		LastScore:        s.lastScore,
		LastSurvived:     s.lastSurvived,
	}
}

// UpdateTick is called by the kernel once per heartbeat tick to
// commit the latest phase/progress fields as a single write.
func (s *State) UpdateTick(phase Phase, generation int, lastGoodRevision string, elapsedSec float64, alive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
	s.generation = generation
	s.lastGoodRevision = lastGoodRevision
	s.elapsedSec = elapsedSec
	s.alive = alive
	s.updatedAt = time.Now()
}

// SetGenerationParams commits the parameters a new generation starts
// with — mutation rate, runtime budget, and spawn wall time — as a
// single write, called once per spawn.
func (s *State) SetGenerationParams(mutationRate float64, maxRuntimeSec int, startWallTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutationRate = mutationRate
	s.maxRuntimeSec = maxRuntimeSec
	s.startWallTime = startWallTime
}

// SetOutcome commits a generation's recorded score and survival, once
// RECORDING has determined them.
func (s *State) SetOutcome(score float64, survived bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScore = score
	s.lastSurvived = survived
}

// SetPhase updates only the phase field, for transitions that don't
// carry a new elapsed/alive reading. The kernel does not call it; the
// phase it publishes comes from UpdateTick.
func (s *State) SetPhase(phase Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
	s.updatedAt = time.Now()
}

// SetPause sets the level-triggered pause flag. Honored by the kernel
// every tick until cleared.
func (s *State) SetPause(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pause = v
}

// Pause reports the current pause flag.
func (s *State) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pause
}

// SetKill raises the edge-triggered kill flag.
func (s *State) SetKill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kill = true
}

// TakeKill atomically reads and clears the kill flag. The kernel
// calls this before acting on it so a single request never triggers
// more than one restart.
func (s *State) TakeKill() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.kill
	s.kill = false
	return v
}

// SetP0Active toggles the task-executor-owned p0 flag, which keeps
// the kernel in RESTARTING instead of EVOLVING while a priority task
// is in flight.
func (s *State) SetP0Active(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p0Active = v
}

// P0Active reports the current p0 flag.
func (s *State) P0Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p0Active
}

// Enqueue appends a task to the FIFO queue.
func (s *State) Enqueue(t Task) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.queue = append(s.queue, t)
}

// Dequeue removes and returns the oldest task, if any.
func (s *State) Dequeue() (Task, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.queue) == 0 {
		return Task{}, false
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, true
}

// QueueDepth reports the number of tasks currently queued.
func (s *State) QueueDepth() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return len(s.queue)
}

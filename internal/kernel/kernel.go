// Package kernel implements the Supervisor Kernel (spec §4.12): the
// generation-lifecycle state machine that composes the heartbeat
// monitor, revision store, fitness log, evolution orchestrator,
// resource guard, and shared state into the single main loop.
package kernel

import (
	"context"
	"fmt"
	"time"

	"github.com/protea-dev/protea/internal/events"
	"github.com/protea-dev/protea/internal/evolution"
	"github.com/protea-dev/protea/internal/fitness"
	"github.com/protea-dev/protea/internal/heartbeat"
	"github.com/protea-dev/protea/internal/orchestrator"
	"github.com/protea-dev/protea/internal/resources"
	"github.com/protea-dev/protea/internal/revision"
	"github.com/protea-dev/protea/internal/state"
	"github.com/protea-dev/protea/internal/worker"
)

// Phase names the generation-lifecycle states, per spec §4.12.
type Phase string

const (
	PhaseStarting   Phase = "STARTING"
	PhaseRunning    Phase = "RUNNING"
	PhaseEvaluating Phase = "EVALUATING"
	PhaseRecording  Phase = "RECORDING"
	PhaseEvolving   Phase = "EVOLVING"
	PhaseRestarting Phase = "RESTARTING"
)

// Config bundles the kernel's tuning knobs, sourced from
// internal/config.
type Config struct {
	WorkerDir          string
	Entrypoint         string
	HeartbeatPath      string
	HeartbeatInterval  time.Duration
	HeartbeatTimeout   time.Duration
	Seed               int64
	ResourceThresholds resources.Thresholds
}

// Kernel owns one generation's worker lifecycle and drives transitions
// until Run's context is canceled.
type Kernel struct {
	cfg          Config
	state        *state.State
	heartbeat    *heartbeat.Monitor
	revisions    *revision.Store
	fitnessLog   *fitness.Log
	workers      *worker.Manager
	orchestrator *orchestrator.Orchestrator
	log          *events.Logger

	generation       int
	lastGoodRevision string
	params           evolution.Params
	startTime        time.Time
	current          *worker.Handle
	killTriggered    bool

	pendingOutcome outcome
	pendingScore   float64
	pendingElapsed float64
}

// New constructs a Kernel. The caller owns closing fitnessLog.
func New(cfg Config, st *state.State, hb *heartbeat.Monitor, revs *revision.Store, fitnessLog *fitness.Log, workers *worker.Manager, orch *orchestrator.Orchestrator, log *events.Logger) *Kernel {
	return &Kernel{
		cfg:          cfg,
		state:        st,
		heartbeat:    hb,
		revisions:    revs,
		fitnessLog:   fitnessLog,
		workers:      workers,
		orchestrator: orch,
		log:          log,
		params:       evolution.GenerateParams(0, cfg.Seed),
	}
}

// Run drives the generation state machine until ctx is canceled. A
// panic inside a single tick is recovered, logged, and the loop
// continues — a subsystem fault never kills supervision, matching the
// teacher's event-loop fault policy.
func (k *Kernel) Run(ctx context.Context) {
	phase := PhaseStarting

	if hash, err := k.revisions.Snapshot(ctx, fmt.Sprintf("gen-%d seed", k.generation)); err == nil {
		k.lastGoodRevision = hash
	}

	for {
		if ctx.Err() != nil {
			k.stopCurrentWorker()
			return
		}
		phase = k.safeTick(ctx, phase)
	}
}

// safeTick runs one state transition with panic recovery.
func (k *Kernel) safeTick(ctx context.Context, phase Phase) (next Phase) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Error("tick panic recovered (phase=%s): %v", phase, r)
			next = phase
		}
	}()
	return k.tick(ctx, phase)
}

func (k *Kernel) tick(ctx context.Context, phase Phase) Phase {
	switch phase {
	case PhaseStarting:
		k.spawnWorker(ctx)
		return PhaseRunning

	case PhaseRunning:
		return k.tickRunning(ctx)

	case PhaseRecording:
		return k.tickRecording(ctx)

	case PhaseEvolving:
		return k.tickEvolving(ctx)

	case PhaseRestarting:
		return k.tickRestarting(ctx)

	default:
		return PhaseRunning
	}
}

func (k *Kernel) tickRunning(ctx context.Context) Phase {
	select {
	case <-time.After(k.cfg.HeartbeatInterval):
	case <-ctx.Done():
		return PhaseRunning
	}

	if ok, msg := resources.Check(k.cfg.ResourceThresholds); !ok {
		k.log.Warn("resource alert: %s", msg)
	}

	elapsed := time.Since(k.startTime).Seconds()
	alive := k.heartbeat.IsAlive()

	k.state.UpdateTick(state.PhaseRunning, k.generation, k.lastGoodRevision, elapsed, alive)

	// kill wins over pause when both are set (spec §4.12 tie-break).
	if k.state.TakeKill() {
		k.killTriggered = true
		k.log.Info("kill received — restarting gen-%d (no advance)", k.generation)
		k.stopCurrentWorker()
		return PhaseRestarting
	}

	if k.state.Pause() {
		return PhaseRunning
	}

	// Reward precedes punishment: a heartbeat that just went stale in
	// the same tick the runtime budget was met still counts as survived.
	if elapsed >= float64(k.params.MaxRuntimeSec) && alive {
		k.pendingOutcome = outcomeSurvived
		k.pendingScore = 1.0
		k.pendingElapsed = elapsed
		return PhaseRecording
	}

	if !alive {
		k.pendingOutcome = outcomeDied
		score := 0.0
		if k.params.MaxRuntimeSec > 0 {
			score = elapsed / float64(k.params.MaxRuntimeSec)
			if score > 0.99 {
				score = 0.99
			}
		}
		k.pendingScore = score
		k.pendingElapsed = elapsed
		return PhaseRecording
	}

	return PhaseRunning
}

type outcome int

const (
	outcomeSurvived outcome = iota
	outcomeDied
)

func (k *Kernel) tickRecording(ctx context.Context) Phase {
	k.stopCurrentWorker()

	survived := k.pendingOutcome == outcomeSurvived
	if _, err := k.fitnessLog.Record(ctx, k.generation, k.lastGoodRevisionOr("unknown"), k.pendingScore, k.pendingElapsed, survived); err != nil {
		k.log.Error("fitness record failed: %v", err)
	}
	k.state.SetOutcome(k.pendingScore, survived)

	if survived {
		k.log.Info("gen-%d survived (%.1fs >= %ds)", k.generation, k.pendingElapsed, k.params.MaxRuntimeSec)
		if hash, err := k.revisions.Snapshot(ctx, fmt.Sprintf("gen-%d survived", k.generation)); err == nil {
			k.lastGoodRevision = hash
		}
	} else {
		k.log.Warn("gen-%d died after %.1fs (score=%.2f)", k.generation, k.pendingElapsed, k.pendingScore)
		if k.lastGoodRevision != "" {
			if err := k.revisions.Rollback(ctx, k.lastGoodRevision); err != nil {
				k.log.Error("rollback failed: %v", err)
			}
		}
	}

	// p0_active is task-executor-owned (§3 Ownership); the kernel only
	// reads it to decide whether a priority task is still in flight.
	if k.state.P0Active() {
		return PhaseRestarting
	}
	return PhaseEvolving
}

func (k *Kernel) tickEvolving(ctx context.Context) Phase {
	survived := k.pendingOutcome == outcomeSurvived
	result := k.orchestrator.Evolve(ctx, k.cfg.WorkerDir, k.generation, k.params, survived, "")
	if result.Success {
		k.log.Info("evolution succeeded: %s", result.Reason)
		if hash, err := k.revisions.Snapshot(ctx, fmt.Sprintf("gen-%d evolved", k.generation)); err == nil {
			k.lastGoodRevision = hash
		}
	} else {
		k.log.Warn("evolution failed: %s", result.Reason)
	}
	return PhaseRestarting
}

func (k *Kernel) tickRestarting(ctx context.Context) Phase {
	if !k.killTriggered {
		k.generation++
		k.params = evolution.GenerateParams(k.generation, k.cfg.Seed)
		k.log.Info("starting generation %d (params: mutation=%.2f pop=%d max_runtime=%ds)",
			k.generation, k.params.MutationRate, k.params.PopulationSize, k.params.MaxRuntimeSec)
	}
	k.killTriggered = false
	k.spawnWorker(ctx)
	return PhaseRunning
}

func (k *Kernel) spawnWorker(ctx context.Context) {
	h, err := k.workers.Start(k.cfg.WorkerDir, k.cfg.Entrypoint, k.cfg.HeartbeatPath)
	if err != nil {
		k.log.Error("failed to start worker: %v", err)
		return
	}
	k.current = h
	k.startTime = time.Now()
	k.state.SetGenerationParams(k.params.MutationRate, k.params.MaxRuntimeSec, k.startTime)
	k.heartbeat.WaitForHeartbeat(k.cfg.HeartbeatTimeout)
}

func (k *Kernel) stopCurrentWorker() {
	if k.current == nil {
		return
	}
	if err := k.workers.Stop(k.current); err != nil {
		k.log.Error("failed to stop worker: %v", err)
	}
	k.current = nil
}

func (k *Kernel) lastGoodRevisionOr(fallback string) string {
	if k.lastGoodRevision == "" {
		return fallback
	}
	return k.lastGoodRevision
}

// Package tasks implements the task executor (spec §4.10): a
// cooperative consumer that blocks on the shared state's task queue
// and processes one P0 user task at a time via the LLM.
package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/protea-dev/protea/internal/llm"
	"github.com/protea-dev/protea/internal/state"
	"github.com/protea-dev/protea/internal/tasklog"
)

// MaxReplyLen bounds the chat reply length (chat transport message
// size safety margin, per spec §4.10).
const MaxReplyLen = 4000

// MaxContextSourceLen bounds how much worker source is embedded in
// the task prompt.
const MaxContextSourceLen = 2000

const systemPrompt = `You are Protea, a self-evolving artificial life agent running on a host machine.
You are helpful and concise. Answer the user's question or perform the requested
analysis. You have context about your current state (generation, survival, code).
Keep responses under 3500 characters so they fit in a chat message.`

// ReplyFunc delivers a task's response back to the chat transport.
type ReplyFunc func(text string) error

// Executor processes tasks from a state.State's queue serially.
type Executor struct {
	state      *state.State
	client     llm.Client
	workerDir  string
	entrypoint string
	reply      ReplyFunc
	tlog       *tasklog.Log
}

// New returns an Executor. entrypoint is the worker source filename
// (e.g. "main.py") embedded as context for task prompts. tlog may be
// nil, in which case tasks are still processed but not recorded.
func New(st *state.State, client llm.Client, workerDir, entrypoint string, reply ReplyFunc, tlog *tasklog.Log) *Executor {
	return &Executor{state: st, client: client, workerDir: workerDir, entrypoint: entrypoint, reply: reply, tlog: tlog}
}

// Run blocks consuming tasks until ctx is canceled. It polls the
// queue rather than blocking on it directly, since state.State's
// queue is a plain slice rather than a channel — matching the
// poll-with-timeout loop the task executor this is grounded on uses
// around its own blocking queue.get(timeout=2).
func (e *Executor) Run(ctx context.Context) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task, ok := e.state.Dequeue()
			if !ok {
				continue
			}
			e.execute(ctx, task)
		}
	}
}

func (e *Executor) execute(ctx context.Context, task state.Task) {
	e.state.SetP0Active(true)
	defer e.state.SetP0Active(false)

	snap := e.state.Snapshot()
	source := e.readWorkerSource()

	userMessage := buildTaskContext(snap, source) + "\n\n## User Request\n" + task.Text

	response, err := e.client.SendMessage(ctx, systemPrompt, userMessage)
	succeeded := err == nil
	if err != nil {
		response = fmt.Sprintf("Sorry, I couldn't process that request: %v", err)
	}

	if len(response) > MaxReplyLen {
		response = response[:MaxReplyLen] + "\n... (truncated)"
	}

	if e.reply != nil {
		_ = e.reply(response)
	}

	if e.tlog != nil {
		if lerr := e.tlog.Append(ctx, task.ID, task.ChatID, task.Text, response, succeeded); lerr != nil {
			fmt.Fprintf(os.Stderr, "[tasks] task log append failed: %v\n", lerr)
		}
	}
}

func (e *Executor) readWorkerSource() string {
	data, err := os.ReadFile(filepath.Join(e.workerDir, e.entrypoint))
	if err != nil {
		return ""
	}
	return string(data)
}

func buildTaskContext(snap state.Snapshot, source string) string {
	var b strings.Builder
	b.WriteString("## Protea State\n")
	fmt.Fprintf(&b, "Generation: %d\n", snap.Generation)
	fmt.Fprintf(&b, "Alive: %v\n", snap.Alive)
	fmt.Fprintf(&b, "Paused: %v\n", snap.Pause)
	fmt.Fprintf(&b, "Phase: %s\n", snap.Phase)
	fmt.Fprintf(&b, "Last score: %.3f\n", snap.LastScore)
	fmt.Fprintf(&b, "Last survived: %v\n", snap.LastSurvived)
	b.WriteString("\n")

	if source != "" {
		truncated := source
		if len(truncated) > MaxContextSourceLen {
			truncated = truncated[:MaxContextSourceLen] + "\n... (truncated)"
		}
		b.WriteString("## Current Worker Code (first 2000 chars)\n```\n")
		b.WriteString(truncated)
		b.WriteString("\n```\n")
	}

	return b.String()
}

// Package chatops implements the chat operator (spec §4.9): an
// independent cooperative task that long-polls a chat transport for
// updates, authorizes them against a configured chat id, and
// dispatches commands against the shared supervisor state.
package chatops

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/protea-dev/protea/internal/fitness"
	"github.com/protea-dev/protea/internal/revision"
	"github.com/protea-dev/protea/internal/state"
)

// Update is one inbound chat message.
type Update struct {
	ID     int64
	ChatID string
	Text   string
}

// Transport is the chat wire protocol: fetch new updates since the
// last acknowledged offset, and send a reply back to a chat.
type Transport interface {
	// GetUpdates long-polls for updates with id > offset, returning
	// the new offset to use on the next call (highest update id seen,
	// advanced past it).
	GetUpdates(ctx context.Context, offset int64) (updates []Update, nextOffset int64, err error)
	SendMessage(ctx context.Context, chatID, text string) error
}

// MaxCodeReplyLen bounds the /code command's reply.
const MaxCodeReplyLen = 3000

// Operator runs the long-poll loop and dispatches commands.
type Operator struct {
	transport     Transport
	state         *state.State
	fitness       *fitness.Log
	revisionStore *revision.Store
	workerDir     string
	entrypoint    string
	chatID        string
	offset        int64
	startedAt     time.Time
}

// New returns an Operator authorized to act only on updates from
// chatID.
func New(t Transport, st *state.State, fitnessLog *fitness.Log, revStore *revision.Store, workerDir, entrypoint, chatID string) *Operator {
	return &Operator{
		transport:     t,
		state:         st,
		fitness:       fitnessLog,
		revisionStore: revStore,
		workerDir:     workerDir,
		entrypoint:    entrypoint,
		chatID:        chatID,
		startedAt:     time.Now(),
	}
}

// Run long-polls until ctx is canceled. Errors from a single poll are
// logged and never stop the loop — matching the bot this is grounded
// on, which treats transport failures as transient and backs off
// rather than exiting.
func (o *Operator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, next, err := o.transport.GetUpdates(ctx, o.offset)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[chatops] poll error: %v\n", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		o.offset = next

		if len(updates) == 0 {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			if u.ChatID != o.chatID {
				continue
			}
			if strings.TrimSpace(u.Text) == "" {
				continue
			}
			reply := o.handle(ctx, u.Text)
			if reply != "" {
				_ = o.transport.SendMessage(ctx, u.ChatID, reply)
			}
		}
	}
}

// handle dispatches a single command (or enqueues free text as a
// task) and returns the reply text, if any.
func (o *Operator) handle(ctx context.Context, text string) string {
	cmd, ok := firstToken(text)
	if !ok {
		return o.cmdHelp()
	}

	switch cmd {
	case "/status":
		return o.cmdStatus()
	case "/history":
		return o.cmdHistory(ctx)
	case "/top":
		return o.cmdTop(ctx)
	case "/code":
		return o.cmdCode()
	case "/pause":
		return o.cmdPause()
	case "/resume":
		return o.cmdResume()
	case "/kill":
		return o.cmdKill()
	case "/help", "/start":
		return o.cmdHelp()
	default:
		if strings.HasPrefix(cmd, "/") {
			return o.cmdHelp()
		}
		o.state.Enqueue(state.Task{ID: fmt.Sprintf("%d", time.Now().UnixNano()), ChatID: o.chatID, Text: text, CreatedAt: time.Now()})
		return ""
	}
}

// firstToken extracts the lowercased, @botname-stripped first
// whitespace-delimited token, per spec §4.9.
func firstToken(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	tok := strings.ToLower(fields[0])
	if idx := strings.Index(tok, "@"); idx >= 0 {
		tok = tok[:idx]
	}
	return tok, true
}

func (o *Operator) cmdStatus() string {
	snap := o.state.Snapshot()
	status := "DEAD"
	if snap.Pause {
		status = "PAUSED"
	} else if snap.Alive {
		status = "ALIVE"
	}
	return fmt.Sprintf(
		"*Protea Status*\nGeneration: %d\nPhase: %s\nStatus: %s\nUptime: %.0fs\nLast good revision: %s\nQueue depth: %d\n"+
			"Mutation rate: %.4f\nMax runtime: %ds\nLast score: %.3f\nLast survived: %v",
		snap.Generation, snap.Phase, status, time.Since(o.startedAt).Seconds(), snap.LastGoodRevision, snap.QueueDepth,
		snap.MutationRate, snap.MaxRuntimeSec, snap.LastScore, snap.LastSurvived,
	)
}

func (o *Operator) cmdHistory(ctx context.Context) string {
	rows, err := o.fitness.History(ctx, 10)
	if err != nil || len(rows) == 0 {
		return "No history yet."
	}
	var b strings.Builder
	b.WriteString("*Recent 10 generations:*\n")
	for _, r := range rows {
		surv := "FAIL"
		if r.Survived {
			surv = "OK"
		}
		fmt.Fprintf(&b, "Gen %d  score=%.2f  %s  %.0fs\n", r.Generation, r.Score, surv, r.RuntimeSec)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (o *Operator) cmdTop(ctx context.Context) string {
	rows, err := o.fitness.Top(ctx, 5)
	if err != nil || len(rows) == 0 {
		return "No fitness data yet."
	}
	var b strings.Builder
	b.WriteString("*Top 5 generations:*\n")
	for _, r := range rows {
		surv := "FAIL"
		if r.Survived {
			surv = "OK"
		}
		hash := r.CommitHash
		if len(hash) > 8 {
			hash = hash[:8]
		}
		fmt.Fprintf(&b, "Gen %d  score=%.2f  %s  `%s`\n", r.Generation, r.Score, surv, hash)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (o *Operator) cmdCode() string {
	data, err := os.ReadFile(o.workerDir + "/" + o.entrypoint)
	if err != nil {
		return fmt.Sprintf("%s not found.", o.entrypoint)
	}
	source := string(data)
	if len(source) > MaxCodeReplyLen {
		source = source[:MaxCodeReplyLen] + "\n... (truncated)"
	}
	return "```\n" + source + "\n```"
}

func (o *Operator) cmdPause() string {
	if o.state.Pause() {
		return "Already paused."
	}
	o.state.SetPause(true)
	return "Evolution paused."
}

func (o *Operator) cmdResume() string {
	if !o.state.Pause() {
		return "Not paused."
	}
	o.state.SetPause(false)
	return "Evolution resumed."
}

func (o *Operator) cmdKill() string {
	o.state.SetKill()
	return "Kill signal sent — worker will restart."
}

func (o *Operator) cmdHelp() string {
	return strings.Join([]string{
		"*Protea Commands:*",
		"/status — current generation, uptime, state",
		"/history — recent 10 generations",
		"/top — top 5 by fitness",
		"/code — current worker source",
		"/pause — pause evolution loop",
		"/resume — resume evolution loop",
		"/kill — restart worker (no generation advance)",
	}, "\n")
}

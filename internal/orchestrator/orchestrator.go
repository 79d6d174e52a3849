// Package orchestrator implements the evolution orchestrator (spec
// §4.8): it assembles a prompt from fitness history and the current
// worker source, submits it to an LLM, extracts and validates the
// returned code, and writes it back — never panicking on failure,
// always surfacing a human-readable reason.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/protea-dev/protea/internal/evolution"
	"github.com/protea-dev/protea/internal/fitness"
	"github.com/protea-dev/protea/internal/llm"
)

// defaultMaxPromptHistory bounds how many fitness rows are embedded in
// the prompt by default; callers may override via Config.
const defaultMaxPromptHistory = 10

// Result is the outcome of an evolve attempt.
type Result struct {
	Success   bool
	Reason    string
	NewSource string

	// Intent/Signals is the classification (§4.5) that drove the
	// prompt assembly for this attempt. BlastRadius is zero-valued on
	// failure, since no new source exists to diff against.
	Intent      evolution.Intent
	Signals     []string
	BlastRadius evolution.BlastRadius
}

// plateauWindow is how many recent fitness entries are examined for a
// plateau signal (§4.5 step 4): a run of scores that haven't moved.
const plateauWindow = 5

// plateauTolerance is the max score spread within the window that
// still counts as "no progress."
const plateauTolerance = 0.05

// Config controls prompt assembly.
type Config struct {
	Entrypoint      string // filename under worker_dir, e.g. "main.py"
	MaxPromptHistory int
}

// Orchestrator drives one evolution attempt.
type Orchestrator struct {
	llm     llm.Client
	fitness *fitness.Log
	cfg     Config
}

// New returns an Orchestrator using client for LLM calls and log for
// fitness history/top-performer context.
func New(client llm.Client, log *fitness.Log, cfg Config) *Orchestrator {
	if cfg.Entrypoint == "" {
		cfg.Entrypoint = "main.py"
	}
	if cfg.MaxPromptHistory <= 0 {
		cfg.MaxPromptHistory = defaultMaxPromptHistory
	}
	return &Orchestrator{llm: client, fitness: log, cfg: cfg}
}

// Evolve runs the full evolve(...) contract of spec §4.8.
func (o *Orchestrator) Evolve(ctx context.Context, workerDir string, generation int, params evolution.Params, survived bool, directive string) Result {
	entrypointPath := filepath.Join(workerDir, o.cfg.Entrypoint)
	source, err := os.ReadFile(entrypointPath)
	if err != nil {
		return Result{Success: false, Reason: fmt.Sprintf("entrypoint not found: %v", err)}
	}

	history, err := o.fitness.History(ctx, o.cfg.MaxPromptHistory)
	if err != nil {
		return Result{Success: false, Reason: fmt.Sprintf("failed to load fitness history: %v", err)}
	}
	top, err := o.fitness.Top(ctx, 5)
	if err != nil {
		return Result{Success: false, Reason: fmt.Sprintf("failed to load top performers: %v", err)}
	}

	classification := evolution.ClassifyIntent(evolution.ClassifyInput{
		Survived:         survived,
		IsPlateaued:      isPlateaued(history),
		PersistentErrors: derivePersistentErrors(history),
		Directive:        directive,
	})

	systemPrompt := buildSystemPrompt(classification)
	userPrompt := buildUserPrompt(string(source), history, top, params, generation, survived, classification)

	reply, err := o.llm.SendMessage(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Result{Success: false, Reason: fmt.Sprintf("LLM error: %v", err), Intent: classification.Intent, Signals: classification.Signals}
	}

	code, ok := extractCodeBlock(reply)
	if !ok {
		return Result{Success: false, Reason: "No code block found in LLM response", Intent: classification.Intent, Signals: classification.Signals}
	}

	if ok, reason := validateWorkerSource(code); !ok {
		return Result{Success: false, Reason: fmt.Sprintf("Validation failed: %s", reason), Intent: classification.Intent, Signals: classification.Signals}
	}

	if err := os.WriteFile(entrypointPath, []byte(code), 0o644); err != nil {
		return Result{Success: false, Reason: fmt.Sprintf("failed to write entrypoint: %v", err), Intent: classification.Intent, Signals: classification.Signals}
	}

	blast := evolution.ComputeBlastRadius(string(source), code)

	return Result{
		Success:     true,
		Reason:      fmt.Sprintf("OK (%s, %s scope)", classification.Intent, blast.Scope),
		NewSource:   code,
		Intent:      classification.Intent,
		Signals:     classification.Signals,
		BlastRadius: blast,
	}
}

// isPlateaued reports whether the most recent entries in history show
// no meaningful score movement — §4.5 signal 4. history is ordered
// most-recent-first (fitness.Log.History's id DESC order).
func isPlateaued(history []fitness.Entry) bool {
	if len(history) < plateauWindow {
		return false
	}
	window := history[:plateauWindow]
	min, max := window[0].Score, window[0].Score
	for _, e := range window[1:] {
		if e.Score < min {
			min = e.Score
		}
		if e.Score > max {
			max = e.Score
		}
	}
	return max-min <= plateauTolerance
}

// derivePersistentErrors synthesizes persistent-error strings from a
// leading run of died generations in history (most-recent-first) —
// the nearest available analogue to the original's crash-log tail,
// since Protea has no separate crash-log capture for worker stderr.
func derivePersistentErrors(history []fitness.Entry) []string {
	var errs []string
	for _, e := range history {
		if len(errs) >= 3 || e.Survived {
			break
		}
		errs = append(errs, fmt.Sprintf("gen-%d died after %.1fs (score %.3f)", e.Generation, e.RuntimeSec, e.Score))
	}
	return errs
}

// intentGuidance maps a classified intent to the mutation guidance
// that steers the LLM's approach, per §4.5/§4.8.
var intentGuidance = map[evolution.Intent]string{
	evolution.IntentAdapt:    "Follow the operator directive above precisely; treat it as the primary mutation goal.",
	evolution.IntentRepair:   "The previous generation crashed or errored. Your primary goal is to fix the defect behind the listed signals, not to add new behavior.",
	evolution.IntentExplore:  "Fitness has plateaued across recent generations. Try a materially different approach rather than a small tweak.",
	evolution.IntentOptimize: "The worker is surviving cleanly. Refine and optimize incrementally without risking survival.",
}

func buildSystemPrompt(c evolution.Classification) string {
	lines := []string{
		"You are evolving a self-monitoring worker process.",
		"Hard constraints the returned source MUST satisfy:",
		fmt.Sprintf("1. It must read the heartbeat path from the %q environment variable.", "WORKER_HEARTBEAT"),
		"2. It must periodically write its pid and current time to that heartbeat path.",
		"3. It must define a callable entrypoint (a main() function invoked when run).",
		fmt.Sprintf("Classified intent for this mutation: %s.", c.Intent),
		intentGuidance[c.Intent],
		"Return the complete new source as a single fenced code block.",
	}
	return strings.Join(lines, "\n")
}

func buildUserPrompt(source string, history []fitness.Entry, top []fitness.Entry, params evolution.Params, generation int, survived bool, c evolution.Classification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generation: %d\n", generation)
	fmt.Fprintf(&b, "Survived: %v\n", survived)
	fmt.Fprintf(&b, "Parameters: %+v\n", params)
	fmt.Fprintf(&b, "Intent: %s\n", c.Intent)
	if len(c.Signals) > 0 {
		fmt.Fprintf(&b, "Signals: %s\n", strings.Join(c.Signals, "; "))
	}

	b.WriteString("\nRecent fitness history:\n")
	for _, e := range history {
		fmt.Fprintf(&b, "- gen=%d score=%.3f runtime=%.1fs survived=%v\n", e.Generation, e.Score, e.RuntimeSec, e.Survived)
	}

	b.WriteString("\nTop performers:\n")
	for _, e := range top {
		fmt.Fprintf(&b, "- gen=%d score=%.3f commit=%s\n", e.Generation, e.Score, e.CommitHash)
	}

	b.WriteString("\nCurrent source:\n```\n")
	b.WriteString(source)
	b.WriteString("\n```\n")

	return b.String()
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:python)?\\s*\\n(.*?)```")

// extractCodeBlock returns the first fenced code block in reply that
// is either tagged ```python or untagged. Blocks tagged with any other
// language are not matched.
func extractCodeBlock(reply string) (string, bool) {
	m := fencedBlockRe.FindStringSubmatch(reply)
	if m == nil {
		return "", false
	}
	return m[1], true
}

var (
	heartbeatEnvRe = regexp.MustCompile(`WORKER_HEARTBEAT`)
	mainDefRe      = regexp.MustCompile(`def\s+main\s*\(`)
)

// validateWorkerSource applies the three rules from spec §4.8 step
// 5: syntactically parseable (lightweight lexical check, since no
// Python parser is available to Go code), references the heartbeat
// env var, and defines a main() entrypoint.
func validateWorkerSource(source string) (bool, string) {
	if ok, reason := lexicallyParseable(source); !ok {
		return false, "Syntax error: " + reason
	}
	if !heartbeatEnvRe.MatchString(source) {
		return false, "missing reference to WORKER_HEARTBEAT"
	}
	if !mainDefRe.MatchString(source) {
		return false, "missing main() entrypoint"
	}
	return true, "OK"
}

// lexicallyParseable performs the checks a real parser would catch
// most often in evolved snippets: balanced brackets/parens/braces and
// balanced quotes. It cannot fully validate Python grammar, but it
// catches the truncated/garbled output an LLM occasionally produces.
func lexicallyParseable(source string) (bool, string) {
	var stack []byte
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	inString := false
	var quote byte
	for i := 0; i < len(source); i++ {
		c := source[i]
		if inString {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				inString = false
			}
			continue
		}
		switch c {
		case '\'', '"':
			inString = true
			quote = c
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return false, fmt.Sprintf("unbalanced %q", c)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if inString {
		return false, "unterminated string literal"
	}
	if len(stack) != 0 {
		return false, fmt.Sprintf("unclosed %q", stack[len(stack)-1])
	}
	return true, ""
}

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/protea-dev/protea/internal/evolution"
	"github.com/protea-dev/protea/internal/fitness"
	"github.com/protea-dev/protea/internal/llm"
	"github.com/stretchr/testify/require"
)

const validSource = `import os, pathlib, time

def write_heartbeat(path, pid):
    path.write_text(f"{pid}\n{time.time()}\n")

def main():
    hb = pathlib.Path(os.environ.get("WORKER_HEARTBEAT", ".heartbeat"))
    pid = os.getpid()
    while True:
        write_heartbeat(hb, pid)
        time.sleep(2)

if __name__ == "__main__":
    main()
`

func newTestOrchestrator(t *testing.T, fake *llm.FakeClient) (*Orchestrator, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte(validSource), 0o644))

	log, err := fitness.Open(filepath.Join(t.TempDir(), "fitness.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return New(fake, log, Config{Entrypoint: "main.py"}), dir
}

func TestEvolveSuccess(t *testing.T) {
	fake := &llm.FakeClient{Response: "Here's the mutated code:\n```python\n" + validSource + "```"}
	o, dir := newTestOrchestrator(t, fake)

	result := o.Evolve(context.Background(), dir, 1, evolution.Params{}, true, "")
	require.True(t, result.Success)
	require.Contains(t, result.Reason, "OK")
	require.NotEmpty(t, result.NewSource)
	require.Equal(t, evolution.IntentOptimize, result.Intent)
	require.Equal(t, evolution.ScopeMinor, result.BlastRadius.Scope)
}

func TestEvolveClassifiesRepairOnDeath(t *testing.T) {
	fake := &llm.FakeClient{Response: "```python\n" + validSource + "```"}
	o, dir := newTestOrchestrator(t, fake)

	result := o.Evolve(context.Background(), dir, 1, evolution.Params{}, false, "")
	require.True(t, result.Success)
	require.Equal(t, evolution.IntentRepair, result.Intent)
}

func TestEvolveClassifiesAdaptOnDirective(t *testing.T) {
	fake := &llm.FakeClient{Response: "```python\n" + validSource + "```"}
	o, dir := newTestOrchestrator(t, fake)

	result := o.Evolve(context.Background(), dir, 1, evolution.Params{}, true, "add logging")
	require.True(t, result.Success)
	require.Equal(t, evolution.IntentAdapt, result.Intent)
	require.Contains(t, result.Signals[0], "directive: add logging")
}

func TestEvolveMissingEntrypoint(t *testing.T) {
	fake := &llm.FakeClient{}
	log, err := fitness.Open(filepath.Join(t.TempDir(), "fitness.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	o := New(fake, log, Config{Entrypoint: "main.py"})

	result := o.Evolve(context.Background(), t.TempDir(), 0, evolution.Params{}, false, "")
	require.False(t, result.Success)
	require.Contains(t, result.Reason, "not found")
}

func TestEvolveLLMError(t *testing.T) {
	fake := &llm.FakeClient{Err: context.DeadlineExceeded}
	o, dir := newTestOrchestrator(t, fake)

	result := o.Evolve(context.Background(), dir, 0, evolution.Params{}, true, "")
	require.False(t, result.Success)
	require.Contains(t, result.Reason, "LLM error")
}

func TestEvolveNoCodeBlock(t *testing.T) {
	fake := &llm.FakeClient{Response: "Sorry, no code today."}
	o, dir := newTestOrchestrator(t, fake)

	result := o.Evolve(context.Background(), dir, 0, evolution.Params{}, true, "")
	require.False(t, result.Success)
	require.Contains(t, result.Reason, "No code block")
}

func TestEvolveInvalidCodeFailsValidation(t *testing.T) {
	fake := &llm.FakeClient{Response: "```python\ndef main():\n    print('no heartbeat')\n```"}
	o, dir := newTestOrchestrator(t, fake)

	result := o.Evolve(context.Background(), dir, 0, evolution.Params{}, true, "")
	require.False(t, result.Success)
	require.Contains(t, result.Reason, "Validation failed")
}

func TestEvolveWritesNewSourceToFile(t *testing.T) {
	fake := &llm.FakeClient{Response: "```python\n" + validSource + "```"}
	o, dir := newTestOrchestrator(t, fake)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("old content"), 0o644))

	result := o.Evolve(context.Background(), dir, 0, evolution.Params{}, true, "")
	require.True(t, result.Success)

	written, err := os.ReadFile(filepath.Join(dir, "main.py"))
	require.NoError(t, err)
	require.Contains(t, string(written), "WORKER_HEARTBEAT")
	require.NotContains(t, string(written), "old content")
}

func TestValidateWorkerSourceRejectsUnbalancedParens(t *testing.T) {
	ok, reason := validateWorkerSource("def main(\n")
	require.False(t, ok)
	require.Contains(t, reason, "Syntax error")
}

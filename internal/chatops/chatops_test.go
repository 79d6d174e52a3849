package chatops

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/protea-dev/protea/internal/fitness"
	"github.com/protea-dev/protea/internal/revision"
	"github.com/protea-dev/protea/internal/state"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu      sync.Mutex
	pending []Update
	nextID  int64
	sent    []string
}

func (f *fakeTransport) push(chatID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.pending = append(f.pending, Update{ID: f.nextID, ChatID: chatID, Text: text})
}

func (f *fakeTransport) GetUpdates(_ context.Context, offset int64) ([]Update, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Update
	next := offset
	for _, u := range f.pending {
		if u.ID > offset {
			out = append(out, u)
			if u.ID+1 > next {
				next = u.ID + 1
			}
		}
	}
	f.pending = nil
	return out, next, nil
}

func (f *fakeTransport) SendMessage(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func newTestOperator(t *testing.T) (*Operator, *fakeTransport, *state.State) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('hi')"), 0o644))

	fitnessLog, err := fitness.Open(filepath.Join(t.TempDir(), "fitness.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = fitnessLog.Close() })

	st := state.New()
	ft := &fakeTransport{}
	op := New(ft, st, fitnessLog, &revision.Store{}, dir, "main.py", "chat-1")
	return op, ft, st
}

func TestHandleStatusCommand(t *testing.T) {
	op, _, st := newTestOperator(t)
	st.UpdateTick(state.PhaseRunning, 2, "rev1", 10, true)
	st.SetGenerationParams(0.2, 60, time.Now())
	st.SetOutcome(0.75, true)

	reply := op.handle(context.Background(), "/status")
	require.Contains(t, reply, "Generation: 2")
	require.Contains(t, reply, "ALIVE")
	require.Contains(t, reply, "Mutation rate: 0.2000")
	require.Contains(t, reply, "Max runtime: 60s")
	require.Contains(t, reply, "Last score: 0.750")
	require.Contains(t, reply, "Last survived: true")
}

func TestHandlePauseResume(t *testing.T) {
	op, _, st := newTestOperator(t)

	require.Equal(t, "Evolution paused.", op.handle(context.Background(), "/pause"))
	require.True(t, st.Pause())
	require.Equal(t, "Already paused.", op.handle(context.Background(), "/pause"))
	require.Equal(t, "Evolution resumed.", op.handle(context.Background(), "/resume"))
	require.False(t, st.Pause())
}

func TestHandleKillSetsFlag(t *testing.T) {
	op, _, st := newTestOperator(t)
	op.handle(context.Background(), "/kill")
	require.True(t, st.TakeKill())
}

func TestHandleStripsBotnameSuffixAndIsCaseInsensitive(t *testing.T) {
	op, _, _ := newTestOperator(t)
	reply := op.handle(context.Background(), "/PAUSE@MyBot")
	require.Equal(t, "Evolution paused.", reply)
}

func TestHandleUnknownCommandShowsHelp(t *testing.T) {
	op, _, _ := newTestOperator(t)
	reply := op.handle(context.Background(), "/bogus")
	require.Contains(t, reply, "Protea Commands")
}

func TestHandleFreeTextEnqueuesTask(t *testing.T) {
	op, _, st := newTestOperator(t)
	reply := op.handle(context.Background(), "please summarize the logs")
	require.Empty(t, reply)
	require.Equal(t, 1, st.QueueDepth())

	task, ok := st.Dequeue()
	require.True(t, ok)
	require.Equal(t, "please summarize the logs", task.Text)
}

func TestRunIgnoresUnauthorizedChat(t *testing.T) {
	op, ft, st := newTestOperator(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		op.Run(ctx)
		close(done)
	}()

	ft.push("someone-else", "/kill")
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	require.False(t, st.TakeKill())
	require.Empty(t, ft.sent)
}

func TestRunProcessesAuthorizedCommand(t *testing.T) {
	op, ft, _ := newTestOperator(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		op.Run(ctx)
		close(done)
	}()

	ft.push("chat-1", "/help")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ft.mu.Lock()
		n := len(ft.sent)
		ft.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	<-done

	require.Len(t, ft.sent, 1)
	require.Contains(t, ft.sent[0], "Protea Commands")
}

package chatops

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// ConsoleTransport is an additive, local Transport: operator commands
// typed into an interactive console are treated exactly like chat
// updates from the configured chat id, and replies are printed to
// stdout instead of sent over a network API. Useful when no chat bot
// token is configured.
type ConsoleTransport struct {
	chatID string
	rl     *readline.Instance

	mu      sync.Mutex
	pending []Update
	nextID  int64
	closed  bool
}

// NewConsoleTransport starts a readline prompt reading commands for
// chatID.
func NewConsoleTransport(chatID string) (*ConsoleTransport, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "protea> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("create console transport: %w", err)
	}
	c := &ConsoleTransport{chatID: chatID, rl: rl}
	go c.readLoop()
	return c, nil
}

func (c *ConsoleTransport) readLoop() {
	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				c.mu.Lock()
				c.closed = true
				c.mu.Unlock()
				return
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c.mu.Lock()
		c.nextID++
		c.pending = append(c.pending, Update{ID: c.nextID, ChatID: c.chatID, Text: line})
		c.mu.Unlock()
	}
}

// GetUpdates drains any console input typed since offset.
func (c *ConsoleTransport) GetUpdates(ctx context.Context, offset int64) ([]Update, int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Update
	next := offset
	for _, u := range c.pending {
		if u.ID > offset {
			out = append(out, u)
			if u.ID+1 > next {
				next = u.ID + 1
			}
		}
	}
	c.pending = nil
	return out, next, nil
}

// SendMessage prints text to the console.
func (c *ConsoleTransport) SendMessage(_ context.Context, _ string, text string) error {
	fmt.Println(text)
	return nil
}

// Close releases the readline instance.
func (c *ConsoleTransport) Close() error {
	return c.rl.Close()
}

// Package history keeps a bounded window of recent turns per conversation.
package history

import (
	"context"
	"sync"

	"github.com/iliyamo/showtime-chatbot/internal/model"
)

// DefaultWindow is the number of turns kept per conversation.
const DefaultWindow = 20

// Store holds conversation history.  Load returns turns oldest first and
// never more than the window; Append drops the oldest turns beyond it.
type Store interface {
	Load(ctx context.Context, sessionID string) ([]model.Turn, error)
	Append(ctx context.Context, sessionID string, turns ...model.Turn) error
}

// Memory is an in-process Store.
type Memory struct {
	window int
	mu     sync.Mutex
	turns  map[string][]model.Turn
}

func NewMemory(window int) *Memory {
	if window < 1 {
		window = DefaultWindow
	}
	return &Memory{window: window, turns: make(map[string][]model.Turn)}
}

func (m *Memory) Load(_ context.Context, sessionID string) ([]model.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Turn(nil), m.turns[sessionID]...), nil
}

func (m *Memory) Append(_ context.Context, sessionID string, turns ...model.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[sessionID] = trimTail(append(m.turns[sessionID], turns...), m.window)
	return nil
}

// trimTail keeps the last n turns.
func trimTail(turns []model.Turn, n int) []model.Turn {
	if len(turns) <= n {
		return turns
	}
	out := make([]model.Turn, n)
	copy(out, turns[len(turns)-n:])
	return out
}

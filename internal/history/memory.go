package history

import (
	"context"
	"sync"
)

// Memory records games in memory, for tests and the standalone dev mode.
type Memory struct {
	mu    sync.Mutex
	games []Game
}

func NewMemory() *Memory {
	return &Memory{}
}

func (a *Memory) Record(_ context.Context, g Game) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, existing := range a.games {
		if existing.SessionID == g.SessionID {
			return nil
		}
	}

	a.games = append(a.games, g)
	return nil
}

func (a *Memory) Games() []Game {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]Game(nil), a.games...)
}

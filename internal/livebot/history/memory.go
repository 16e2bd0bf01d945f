package history

import (
	"context"
	"sync"
	"time"
)

// maxMemoryTurns bounds each in-memory conversation.
const maxMemoryTurns = 200

// Memory is an in-process Store.
type Memory struct {
	mu    sync.Mutex
	convs map[string][]Turn
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{convs: make(map[string][]Turn)}
}

func (m *Memory) Recent(_ context.Context, conversation string) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.convs[conversation]
	out := make([]Turn, len(src))
	copy(out, src)
	return out, nil
}

func (m *Memory) Append(_ context.Context, conversation string, t Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := append(m.convs[conversation], t)
	if len(turns) > maxMemoryTurns {
		turns = turns[len(turns)-maxMemoryTurns:]
	}
	m.convs[conversation] = turns
	return nil
}

// Reset appends a reset marker.
func (m *Memory) Reset(ctx context.Context, conversation string, at time.Time) error {
	return m.Append(ctx, conversation, Turn{Role: RoleAssistant, Text: ResetSentinel, Timestamp: at})
}

// Package transcript provides access to raw conversation turns. The context
// assembler reads recent turns from a Provider; applications that keep their
// chat history elsewhere implement Provider over their own storage.
package transcript

import (
	"context"
	"sync"
	"time"
)

// Turn is one message in a conversation.
type Turn struct {
	Role      string    `json:"role"` // user or assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Provider serves the most recent turns of a conversation, oldest first.
type Provider interface {
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]Turn, error)
}

// Recorder accepts turns as a conversation progresses.
type Recorder interface {
	Append(ctx context.Context, conversationID string, turn Turn) error
}

// InMemoryProvider keeps transcripts in process memory. It implements both
// Provider and Recorder and is safe for concurrent use.
type InMemoryProvider struct {
	mu    sync.RWMutex
	turns map[string][]Turn
}

// NewInMemoryProvider creates an empty transcript store.
func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{
		turns: make(map[string][]Turn),
	}
}

// Append records a turn at the end of the conversation. A zero timestamp is
// filled with the current time.
func (p *InMemoryProvider) Append(ctx context.Context, conversationID string, turn Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turns[conversationID] = append(p.turns[conversationID], turn)
	return nil
}

// RecentTurns returns up to limit of the newest turns, oldest first. A limit
// of zero or less returns every turn.
func (p *InMemoryProvider) RecentTurns(ctx context.Context, conversationID string, limit int) ([]Turn, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	all := p.turns[conversationID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Turn, len(all))
	copy(out, all)
	return out, nil
}

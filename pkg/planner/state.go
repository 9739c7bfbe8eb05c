package planner

import (
	"context"
	"time"

	"github.com/OkGoDoIt/eliza/pkg/memory"
)

// Snapshot is the external state a plan is generated from. The engine treats
// it as opaque input and passes it through to the generator.
type Snapshot struct {
	AgentID    string
	Goal       string
	Messages   []memory.ConversationMessage
	Facts      map[string]string
	CapturedAt time.Time
}

// StateProvider supplies a fresh snapshot of external state.
type StateProvider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// MemoryStateProvider builds snapshots from a conversation store.
type MemoryStateProvider struct {
	AgentID       string
	Goal          string
	SessionID     string
	Window        int
	Conversations memory.ConversationMemory
}

// Snapshot implements StateProvider.
func (p *MemoryStateProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		AgentID:    p.AgentID,
		Goal:       p.Goal,
		CapturedAt: time.Now().UTC(),
	}
	if p.Conversations != nil {
		window := p.Window
		if window <= 0 {
			window = 20
		}
		messages, err := p.Conversations.GetRecentMessages(ctx, p.SessionID, window)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Messages = messages
	}
	return snap, nil
}

// StaticStateProvider returns the same snapshot on every call. Useful for
// tests and fixed-goal agents.
type StaticStateProvider struct {
	State Snapshot
}

// Snapshot implements StateProvider.
func (p *StaticStateProvider) Snapshot(_ context.Context) (Snapshot, error) {
	snap := p.State
	snap.CapturedAt = time.Now().UTC()
	return snap, nil
}

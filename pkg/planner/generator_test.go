package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/OkGoDoIt/eliza/pkg/errors"
	"github.com/OkGoDoIt/eliza/pkg/memory"
)

func TestGoalGeneratorDecomposesGoal(t *testing.T) {
	p, err := GoalGenerator{}.Generate(context.Background(), Snapshot{
		AgentID: "agent-1",
		Goal:    "summarize overnight activity",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if p.Goal != "summarize overnight activity" {
		t.Errorf("expected goal carried over, got %q", p.Goal)
	}
	if len(p.Subtasks) != 3 {
		t.Fatalf("expected three phases, got %d", len(p.Subtasks))
	}
	if !strings.Contains(p.Subtasks[1].Description, "summarize overnight activity") {
		t.Errorf("expected the act phase to mention the goal, got %q", p.Subtasks[1].Description)
	}

	// Phases depend on their predecessor.
	if len(p.Subtasks[0].DependsOn) != 0 {
		t.Errorf("expected first phase without dependencies")
	}
	if got := p.Subtasks[1].DependsOn; len(got) != 1 || got[0] != p.Subtasks[0].ID {
		t.Errorf("expected second phase to depend on the first, got %v", got)
	}
	if got := p.Subtasks[2].DependsOn; len(got) != 1 || got[0] != p.Subtasks[1].ID {
		t.Errorf("expected third phase to depend on the second, got %v", got)
	}
	if len(p.DanglingDependencies()) != 0 {
		t.Errorf("expected all dependencies resolvable")
	}
}

func TestGoalGeneratorFallsBackToLatestMessage(t *testing.T) {
	p, err := GoalGenerator{}.Generate(context.Background(), Snapshot{
		Messages: []memory.ConversationMessage{
			{Role: "user", Content: "older request"},
			{Role: "user", Content: "check the portfolio"},
		},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if p.Goal != "check the portfolio" {
		t.Errorf("expected latest message as goal, got %q", p.Goal)
	}
}

func TestGoalGeneratorFailsLoudlyWithoutState(t *testing.T) {
	_, err := GoalGenerator{}.Generate(context.Background(), Snapshot{})
	if !errors.HasCode(err, errors.CodePlanGeneration) {
		t.Fatalf("expected PLAN_GENERATION_FAILED, got %v", err)
	}
}

func TestMemoryStateProvider(t *testing.T) {
	ctx := context.Background()
	conversations := memory.NewInMemoryConversation()
	for _, content := range []string{"a", "b", "c"} {
		if err := conversations.AppendMessage(ctx, "main", memory.ConversationMessage{Content: content}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	provider := &MemoryStateProvider{
		AgentID:       "agent-1",
		Goal:          "stay on top of things",
		SessionID:     "main",
		Window:        2,
		Conversations: conversations,
	}

	snap, err := provider.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.AgentID != "agent-1" || snap.Goal != "stay on top of things" {
		t.Errorf("expected identity fields populated, got %+v", snap)
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("expected windowed messages, got %d", len(snap.Messages))
	}
	if snap.Messages[1].Content != "c" {
		t.Errorf("expected most recent message last, got %q", snap.Messages[1].Content)
	}
	if snap.CapturedAt.IsZero() {
		t.Errorf("expected capture timestamp")
	}
}

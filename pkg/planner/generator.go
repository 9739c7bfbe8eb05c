package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/OkGoDoIt/eliza/pkg/errors"
	"github.com/OkGoDoIt/eliza/pkg/plan"
)

// Generator decomposes external state into a plan. Implementations must
// return a plan with at least one subtask or an error, never a partial plan.
type Generator interface {
	Generate(ctx context.Context, snap Snapshot) (*plan.Plan, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, snap Snapshot) (*plan.Plan, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, snap Snapshot) (*plan.Plan, error) {
	return f(ctx, snap)
}

// GoalGenerator is the default decomposition strategy: a fixed
// gather/act/verify phase chain around the snapshot goal, with each phase
// depending on the previous one. It is deliberately simple; richer
// strategies plug in through the Generator interface.
type GoalGenerator struct{}

// Generate implements Generator.
func (GoalGenerator) Generate(_ context.Context, snap Snapshot) (*plan.Plan, error) {
	goal := strings.TrimSpace(snap.Goal)
	if goal == "" && len(snap.Messages) > 0 {
		// Fall back to the latest conversational request.
		goal = strings.TrimSpace(snap.Messages[len(snap.Messages)-1].Content)
	}
	if goal == "" {
		return nil, errors.New(errors.CodePlanGeneration,
			"snapshot carries no goal and no recent messages", nil).
			WithContext("agent_id", snap.AgentID)
	}

	p := plan.New(goal,
		fmt.Sprintf("gather context relevant to: %s", goal),
		fmt.Sprintf("carry out: %s", goal),
		"verify the outcome and record it",
	)
	p.Subtasks[1].DependsOn = []string{p.Subtasks[0].ID}
	p.Subtasks[2].DependsOn = []string{p.Subtasks[1].ID}
	return p, nil
}

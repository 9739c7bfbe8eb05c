// Package plan defines the plan and subtask model shared by the loop driver
// and the plan engine.
package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status describes the lifecycle state of a plan.
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusAbandoned  Status = "abandoned"
)

// SubtaskStatus describes the lifecycle state of a single subtask.
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskInProgress SubtaskStatus = "in_progress"
	SubtaskCompleted  SubtaskStatus = "completed"
	SubtaskFailed     SubtaskStatus = "failed"
)

// ValidSubtaskStatus reports whether s is a known subtask status.
func ValidSubtaskStatus(s SubtaskStatus) bool {
	switch s {
	case SubtaskPending, SubtaskInProgress, SubtaskCompleted, SubtaskFailed:
		return true
	}
	return false
}

// Subtask is one unit of decomposed work inside a plan. Order in the plan's
// slice is creation order, not execution order.
type Subtask struct {
	ID          string        `json:"id" yaml:"id"`
	Description string        `json:"description" yaml:"description"`
	Status      SubtaskStatus `json:"status" yaml:"status"`
	DependsOn   []string      `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	CreatedAt   time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" yaml:"updated_at"`
}

// Lineage records where a replanned plan came from. OriginalPlanCreatedAt
// always refers to the first ancestor in a replan chain, not the immediate
// predecessor.
type Lineage struct {
	PreviousPlanID        string            `json:"previous_plan_id" yaml:"previous_plan_id"`
	ReplanReason          string            `json:"replan_reason" yaml:"replan_reason"`
	OriginalPlanCreatedAt time.Time         `json:"original_plan_created_at" yaml:"original_plan_created_at"`
	Extra                 map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Plan is the unit of decomposed goal-directed work. At most one plan is
// current per agent at any instant.
type Plan struct {
	ID        string    `json:"id" yaml:"id"`
	Goal      string    `json:"goal" yaml:"goal"`
	Subtasks  []Subtask `json:"subtasks" yaml:"subtasks"`
	Status    Status    `json:"status" yaml:"status"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	Metadata  *Lineage  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// New creates a plan with a generated id and pending subtasks built from the
// given descriptions.
func New(goal string, descriptions ...string) *Plan {
	now := time.Now().UTC()
	p := &Plan{
		ID:        uuid.NewString(),
		Goal:      goal,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, desc := range descriptions {
		p.Subtasks = append(p.Subtasks, Subtask{
			ID:          uuid.NewString(),
			Description: desc,
			Status:      SubtaskPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return p
}

// Validate ensures the plan is structurally sound: a non-empty id, at least
// one subtask, and subtask ids unique within the plan. Dangling dependency
// references are not a validation failure; see DanglingDependencies.
func (p *Plan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan is nil")
	}
	if p.ID == "" {
		return fmt.Errorf("plan id is required")
	}
	if len(p.Subtasks) == 0 {
		return fmt.Errorf("plan %q has no subtasks", p.ID)
	}
	seen := make(map[string]bool, len(p.Subtasks))
	for _, st := range p.Subtasks {
		if st.ID == "" {
			return fmt.Errorf("plan %q has a subtask without id", p.ID)
		}
		if seen[st.ID] {
			return fmt.Errorf("plan %q has duplicate subtask id %q", p.ID, st.ID)
		}
		seen[st.ID] = true
	}
	return nil
}

// DanglingDependencies returns dependency references that do not resolve to
// any subtask in the plan. A non-empty result is an anomaly, not an error.
func (p *Plan) DanglingDependencies() []string {
	ids := make(map[string]bool, len(p.Subtasks))
	for _, st := range p.Subtasks {
		ids[st.ID] = true
	}
	var dangling []string
	for _, st := range p.Subtasks {
		for _, dep := range st.DependsOn {
			if !ids[dep] {
				dangling = append(dangling, dep)
			}
		}
	}
	return dangling
}

// Subtask returns a pointer to the subtask with the given id, or nil.
// The pointer aliases the plan's backing slice.
func (p *Plan) Subtask(id string) *Subtask {
	for i := range p.Subtasks {
		if p.Subtasks[i].ID == id {
			return &p.Subtasks[i]
		}
	}
	return nil
}

// AllSubtasksCompleted reports whether every subtask has completed.
func (p *Plan) AllSubtasksCompleted() bool {
	if len(p.Subtasks) == 0 {
		return false
	}
	for _, st := range p.Subtasks {
		if st.Status != SubtaskCompleted {
			return false
		}
	}
	return true
}

// HasFailedSubtask reports whether any subtask has failed.
func (p *Plan) HasFailedSubtask() bool {
	for _, st := range p.Subtasks {
		if st.Status == SubtaskFailed {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the plan can no longer be current.
func (p *Plan) IsTerminal() bool {
	switch p.Status {
	case StatusCompleted, StatusFailed, StatusAbandoned:
		return true
	}
	return false
}

// RootCreatedAt returns the creation time of the first ancestor in the replan
// chain, or the plan's own creation time when it has no lineage.
func (p *Plan) RootCreatedAt() time.Time {
	if p.Metadata != nil && !p.Metadata.OriginalPlanCreatedAt.IsZero() {
		return p.Metadata.OriginalPlanCreatedAt
	}
	return p.CreatedAt
}

// Touch bumps the plan's UpdatedAt, keeping it monotonic non-decreasing.
func (p *Plan) Touch(now time.Time) {
	if now.After(p.UpdatedAt) {
		p.UpdatedAt = now
	}
}

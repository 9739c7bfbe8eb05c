package plan

import (
	"testing"
	"time"
)

func TestNewPlan(t *testing.T) {
	p := New("ship the release", "write changelog", "tag version")

	if p.ID == "" {
		t.Fatalf("expected generated plan id")
	}
	if p.Status != StatusCreated {
		t.Errorf("expected status created, got %q", p.Status)
	}
	if len(p.Subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(p.Subtasks))
	}
	for _, st := range p.Subtasks {
		if st.Status != SubtaskPending {
			t.Errorf("expected subtask %q pending, got %q", st.ID, st.Status)
		}
		if st.CreatedAt.IsZero() || st.UpdatedAt.IsZero() {
			t.Errorf("expected subtask timestamps set")
		}
	}
	if err := p.Validate(); err != nil {
		t.Errorf("expected fresh plan to validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Plan)
		wantErr bool
	}{
		{"valid", func(*Plan) {}, false},
		{"missing id", func(p *Plan) { p.ID = "" }, true},
		{"no subtasks", func(p *Plan) { p.Subtasks = nil }, true},
		{"subtask without id", func(p *Plan) { p.Subtasks[0].ID = "" }, true},
		{"duplicate subtask id", func(p *Plan) { p.Subtasks[1].ID = p.Subtasks[0].ID }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New("goal", "one", "two")
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDanglingDependencies(t *testing.T) {
	p := New("goal", "one", "two")
	p.Subtasks[1].DependsOn = []string{p.Subtasks[0].ID, "ghost"}

	dangling := p.DanglingDependencies()
	if len(dangling) != 1 || dangling[0] != "ghost" {
		t.Errorf("expected single dangling reference ghost, got %v", dangling)
	}

	// Anomaly, not a hard failure.
	if err := p.Validate(); err != nil {
		t.Errorf("dangling dependency must not fail validation: %v", err)
	}
}

func TestCompletionHelpers(t *testing.T) {
	p := New("goal", "one", "two")
	if p.AllSubtasksCompleted() {
		t.Errorf("expected pending plan not completed")
	}
	if p.HasFailedSubtask() {
		t.Errorf("expected no failed subtasks")
	}

	p.Subtasks[0].Status = SubtaskCompleted
	p.Subtasks[1].Status = SubtaskFailed
	if p.AllSubtasksCompleted() {
		t.Errorf("expected failed plan not completed")
	}
	if !p.HasFailedSubtask() {
		t.Errorf("expected failed subtask to be detected")
	}

	p.Subtasks[1].Status = SubtaskCompleted
	if !p.AllSubtasksCompleted() {
		t.Errorf("expected completion once all subtasks completed")
	}
}

func TestRootCreatedAt(t *testing.T) {
	p := New("goal", "one")
	if !p.RootCreatedAt().Equal(p.CreatedAt) {
		t.Errorf("expected own creation time without lineage")
	}

	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.Metadata = &Lineage{PreviousPlanID: "p0", OriginalPlanCreatedAt: t0}
	if !p.RootCreatedAt().Equal(t0) {
		t.Errorf("expected root ancestor creation time, got %v", p.RootCreatedAt())
	}
}

func TestTouchMonotonic(t *testing.T) {
	p := New("goal", "one")
	before := p.UpdatedAt

	p.Touch(before.Add(-time.Hour))
	if !p.UpdatedAt.Equal(before) {
		t.Errorf("expected UpdatedAt unchanged by earlier touch")
	}

	later := before.Add(time.Minute)
	p.Touch(later)
	if !p.UpdatedAt.Equal(later) {
		t.Errorf("expected UpdatedAt bumped to %v, got %v", later, p.UpdatedAt)
	}
}

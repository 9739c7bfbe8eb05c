package planner

import (
	"testing"
	"time"

	"github.com/OkGoDoIt/eliza/pkg/plan"
)

func TestDetectDriftHealthyPlan(t *testing.T) {
	p := plan.New("goal", "a", "b")
	if got := detectDrift(p, time.Hour, time.Now().UTC()); len(got) != 0 {
		t.Errorf("expected no discrepancies for a fresh healthy plan, got %v", got)
	}
}

func TestDetectDriftFailedSubtaskIsCritical(t *testing.T) {
	p := plan.New("goal", "a", "b")
	p.Subtasks[1].Status = plan.SubtaskFailed

	got := detectDrift(p, time.Hour, time.Now().UTC())
	if len(got) != 1 {
		t.Fatalf("expected one discrepancy, got %v", got)
	}
	if got[0].Severity != SeverityCritical || got[0].Code != "subtask_failed" {
		t.Errorf("expected critical subtask_failed, got %+v", got[0])
	}
	if got[0].SubtaskID != p.Subtasks[1].ID {
		t.Errorf("expected discrepancy tagged with the failed subtask id")
	}
}

func TestDetectDriftDanglingDependencyIsInfo(t *testing.T) {
	p := plan.New("goal", "a")
	p.Subtasks[0].DependsOn = []string{"ghost"}

	got := detectDrift(p, time.Hour, time.Now().UTC())
	if len(got) != 1 {
		t.Fatalf("expected one discrepancy, got %v", got)
	}
	if got[0].Severity != SeverityInfo || got[0].Code != "dangling_dependency" {
		t.Errorf("expected informational dangling_dependency, got %+v", got[0])
	}
}

func TestDetectDriftStaleness(t *testing.T) {
	p := plan.New("goal", "a")
	now := p.UpdatedAt.Add(30 * time.Minute)

	got := detectDrift(p, 10*time.Minute, now)
	if len(got) != 1 || got[0].Code != "stale_plan" || got[0].Severity != SeverityInfo {
		t.Fatalf("expected informational stale_plan, got %v", got)
	}

	// Threshold zero disables the check.
	if got := detectDrift(p, 0, now); len(got) != 0 {
		t.Errorf("expected staleness check disabled, got %v", got)
	}
}

func TestDetectDriftNilPlan(t *testing.T) {
	if got := detectDrift(nil, time.Hour, time.Now().UTC()); got != nil {
		t.Errorf("expected nil for nil plan, got %v", got)
	}
}

func TestFirstCritical(t *testing.T) {
	discrepancies := []Discrepancy{
		{Severity: SeverityInfo, Code: "stale_plan"},
		{Severity: SeverityCritical, Code: "subtask_failed", Message: "subtask \"x\" failed"},
		{Severity: SeverityCritical, Code: "subtask_failed", Message: "subtask \"y\" failed"},
	}

	got, ok := firstCritical(discrepancies)
	if !ok || got.Message != "subtask \"x\" failed" {
		t.Errorf("expected first critical discrepancy, got %+v ok=%v", got, ok)
	}

	if _, ok := firstCritical(discrepancies[:1]); ok {
		t.Errorf("expected no critical among informational discrepancies")
	}
}

func TestTallyTotal(t *testing.T) {
	tally := Tally{Pending: 2, InProgress: 1, Completed: 3, Failed: 1}
	if tally.Total() != 7 {
		t.Errorf("expected total 7, got %d", tally.Total())
	}
}

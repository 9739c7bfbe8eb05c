package plan

import (
	"testing"
	"time"
)

func lineagePlan() *Plan {
	p := New("observe the market", "read feeds", "summarize")
	p.Subtasks[1].DependsOn = []string{p.Subtasks[0].ID}
	p.Subtasks[0].Status = SubtaskCompleted
	p.Status = StatusInProgress
	p.Metadata = &Lineage{
		PreviousPlanID:        "ancestor",
		ReplanReason:          "subtask failure",
		OriginalPlanCreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	return p
}

func TestJSONRoundTrip(t *testing.T) {
	original := lineagePlan()

	data, err := MarshalJSON(original, true)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := ParseJSON(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	assertPlansEqual(t, original, parsed)
}

func TestYAMLRoundTrip(t *testing.T) {
	original := lineagePlan()

	data, err := MarshalYAML(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	assertPlansEqual(t, original, parsed)
}

func TestParseRejectsInvalid(t *testing.T) {
	if _, err := ParseJSON(nil); err == nil {
		t.Errorf("expected error for empty payload")
	}
	if _, err := ParseJSON([]byte(`{"id":"p1","subtasks":[]}`)); err == nil {
		t.Errorf("expected validation error for empty subtasks")
	}
	if _, err := ParseYAML([]byte("id: p1\nsubtasks: []\n")); err == nil {
		t.Errorf("expected validation error for empty subtasks")
	}
}

func TestMarshalRejectsInvalid(t *testing.T) {
	p := New("goal", "one")
	p.ID = ""
	if _, err := MarshalJSON(p, false); err == nil {
		t.Errorf("expected marshal to validate")
	}
	if _, err := MarshalYAML(nil); err == nil {
		t.Errorf("expected nil plan rejected")
	}
}

func assertPlansEqual(t *testing.T, want, got *Plan) {
	t.Helper()
	if got.ID != want.ID || got.Goal != want.Goal || got.Status != want.Status {
		t.Errorf("plan header mismatch: want %+v, got %+v", want, got)
	}
	if len(got.Subtasks) != len(want.Subtasks) {
		t.Fatalf("expected %d subtasks, got %d", len(want.Subtasks), len(got.Subtasks))
	}
	for i := range want.Subtasks {
		w, g := want.Subtasks[i], got.Subtasks[i]
		if g.ID != w.ID || g.Status != w.Status || g.Description != w.Description {
			t.Errorf("subtask %d mismatch: want %+v, got %+v", i, w, g)
		}
		if len(g.DependsOn) != len(w.DependsOn) {
			t.Errorf("subtask %d dependencies mismatch: want %v, got %v", i, w.DependsOn, g.DependsOn)
		}
	}
	if got.Metadata == nil || want.Metadata == nil {
		t.Fatalf("expected lineage on both plans")
	}
	if got.Metadata.PreviousPlanID != want.Metadata.PreviousPlanID {
		t.Errorf("lineage previous id mismatch")
	}
	if !got.Metadata.OriginalPlanCreatedAt.Equal(want.Metadata.OriginalPlanCreatedAt) {
		t.Errorf("lineage root timestamp mismatch")
	}
}

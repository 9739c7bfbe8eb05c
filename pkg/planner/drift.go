package planner

import (
	"fmt"
	"time"

	"github.com/OkGoDoIt/eliza/pkg/plan"
)

// Severity classifies a discrepancy. Only critical discrepancies justify
// replacing the current plan; informational drift is tolerated.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityInfo     Severity = "info"
)

// Discrepancy describes a detected deviation between expected and actual
// plan progress.
type Discrepancy struct {
	Severity  Severity
	Code      string
	Message   string
	SubtaskID string
}

func (d Discrepancy) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Code, d.Message)
}

// Tally is the per-status subtask count reported by MonitorPlan.
type Tally struct {
	Pending    int
	InProgress int
	Completed  int
	Failed     int
}

// Total returns the number of subtasks counted.
func (t Tally) Total() int {
	return t.Pending + t.InProgress + t.Completed + t.Failed
}

func tallyPlan(p *plan.Plan) Tally {
	var t Tally
	for _, st := range p.Subtasks {
		switch st.Status {
		case plan.SubtaskPending:
			t.Pending++
		case plan.SubtaskInProgress:
			t.InProgress++
		case plan.SubtaskCompleted:
			t.Completed++
		case plan.SubtaskFailed:
			t.Failed++
		}
	}
	return t
}

// detectDrift evaluates plan health. Failed subtasks are critical; dangling
// dependency references and staleness are informational.
func detectDrift(p *plan.Plan, staleness time.Duration, now time.Time) []Discrepancy {
	if p == nil {
		return nil
	}
	var out []Discrepancy
	for _, st := range p.Subtasks {
		if st.Status == plan.SubtaskFailed {
			out = append(out, Discrepancy{
				Severity:  SeverityCritical,
				Code:      "subtask_failed",
				Message:   fmt.Sprintf("subtask %q failed", st.ID),
				SubtaskID: st.ID,
			})
		}
	}
	for _, dep := range p.DanglingDependencies() {
		out = append(out, Discrepancy{
			Severity: SeverityInfo,
			Code:     "dangling_dependency",
			Message:  fmt.Sprintf("dependency %q does not resolve to a subtask", dep),
		})
	}
	if staleness > 0 && now.Sub(p.UpdatedAt) > staleness {
		out = append(out, Discrepancy{
			Severity: SeverityInfo,
			Code:     "stale_plan",
			Message:  fmt.Sprintf("no progress since %s", p.UpdatedAt.Format(time.RFC3339)),
		})
	}
	return out
}

func firstCritical(discrepancies []Discrepancy) (Discrepancy, bool) {
	for _, d := range discrepancies {
		if d.Severity == SeverityCritical {
			return d, true
		}
	}
	return Discrepancy{}, false
}

package plan

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrPlanNotFound is returned when no plan matches the requested id, or no
// current plan exists.
var ErrPlanNotFound = errors.New("plan not found")

// Filter limits plan queries.
type Filter struct {
	Status Status
	Limit  int
}

// Store persists plans. The engine treats persistence as an optional
// durability add-on; the in-memory current-plan slot is authoritative.
type Store interface {
	// Save upserts a plan and records whether it is the current one.
	Save(ctx context.Context, p *Plan, current bool) error

	// Load returns a plan by id.
	Load(ctx context.Context, id string) (*Plan, error)

	// LoadCurrent returns the plan last saved as current, or ErrPlanNotFound.
	LoadCurrent(ctx context.Context) (*Plan, error)

	// ClearCurrent forgets the current-plan marker without deleting plans.
	ClearCurrent(ctx context.Context) error

	// List returns plans matching the filter, most recently updated first.
	List(ctx context.Context, filter Filter) ([]*Plan, error)
}

// MemoryStore keeps plans in memory.
type MemoryStore struct {
	mu        sync.Mutex
	plans     map[string]*Plan
	order     []string // insertion order for stable listing
	currentID string
}

// NewMemoryStore returns an in-memory plan store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string]*Plan)}
}

// Save upserts a plan snapshot.
func (s *MemoryStore) Save(_ context.Context, p *Plan, current bool) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.plans[p.ID] = clonePlan(p)
	if current {
		s.currentID = p.ID
	} else if s.currentID == p.ID {
		s.currentID = ""
	}
	return nil
}

// Load returns a plan by id.
func (s *MemoryStore) Load(_ context.Context, id string) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return clonePlan(p), nil
}

// LoadCurrent returns the current plan.
func (s *MemoryStore) LoadCurrent(_ context.Context) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentID == "" {
		return nil, ErrPlanNotFound
	}
	p, ok := s.plans[s.currentID]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return clonePlan(p), nil
}

// ClearCurrent forgets the current-plan marker.
func (s *MemoryStore) ClearCurrent(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentID = ""
	return nil
}

// List returns filtered plans, most recently updated first.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Plan, 0, len(s.order))
	for _, id := range s.order {
		p := s.plans[id]
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, clonePlan(p))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func clonePlan(p *Plan) *Plan {
	cp := *p
	cp.Subtasks = make([]Subtask, len(p.Subtasks))
	copy(cp.Subtasks, p.Subtasks)
	for i := range cp.Subtasks {
		if deps := p.Subtasks[i].DependsOn; deps != nil {
			cp.Subtasks[i].DependsOn = append([]string(nil), deps...)
		}
	}
	if p.Metadata != nil {
		meta := *p.Metadata
		if p.Metadata.Extra != nil {
			meta.Extra = make(map[string]string, len(p.Metadata.Extra))
			for k, v := range p.Metadata.Extra {
				meta.Extra[k] = v
			}
		}
		cp.Metadata = &meta
	}
	return &cp
}

// normalizeTime ensures persisted timestamps are in UTC.
func normalizeTime(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return value.UTC()
}

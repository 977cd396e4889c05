package repo

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/domain"
)

// MemoryStore — Store в памяти процесса.
type MemoryStore struct {
	mu          sync.RWMutex
	deployments map[uuid.UUID]*domain.Deployment
	steps       map[uuid.UUID][]*domain.Step
	audit       []*domain.AuditEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore создаёт пустой MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deployments: make(map[uuid.UUID]*domain.Deployment),
		steps:       make(map[uuid.UUID][]*domain.Step),
	}
}

func (s *MemoryStore) CreateDeployment(_ context.Context, d *domain.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deployments[d.ID]; ok {
		return fmt.Errorf("deployment %s: %w", d.ID, ErrAlreadyExists)
	}
	s.deployments[d.ID] = cloneDeployment(d)
	return nil
}

func (s *MemoryStore) UpdateDeployment(_ context.Context, d *domain.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.deployments[d.ID]
	if !ok {
		return ErrNotFound
	}
	next := cloneDeployment(d)
	// Как и в PgStore, конфигурация и автор после создания не меняются.
	next.Config = cur.Config
	next.CreatedBy = cur.CreatedBy
	next.CreatedAt = cur.CreatedAt
	s.deployments[d.ID] = next
	return nil
}

func (s *MemoryStore) GetDeployment(_ context.Context, id uuid.UUID) (*domain.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deployments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDeployment(d), nil
}

func (s *MemoryStore) ListDeployments(_ context.Context, filter DeploymentFilter) ([]domain.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Deployment
	for _, d := range s.deployments {
		if filter.Environment != "" && d.Environment != filter.Environment {
			continue
		}
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		matched = append(matched, d)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.limit() {
		matched = matched[:filter.limit()]
	}

	out := make([]domain.Deployment, 0, len(matched))
	for _, d := range matched {
		out = append(out, *cloneDeployment(d))
	}
	return out, nil
}

func (s *MemoryStore) CreateStep(_ context.Context, step *domain.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deployments[step.DeploymentID]; !ok {
		return fmt.Errorf("deployment %s: %w", step.DeploymentID, ErrNotFound)
	}
	for _, existing := range s.steps[step.DeploymentID] {
		if existing.ID == step.ID {
			return fmt.Errorf("step %s: %w", step.ID, ErrAlreadyExists)
		}
	}
	s.steps[step.DeploymentID] = append(s.steps[step.DeploymentID], step.Clone())
	return nil
}

func (s *MemoryStore) UpdateStep(_ context.Context, step *domain.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := s.steps[step.DeploymentID]
	for i, existing := range steps {
		if existing.ID != step.ID {
			continue
		}
		next := existing.Clone()
		next.Status = step.Status
		next.Attempts = step.Attempts
		next.Output = step.Output
		next.Error = step.Error
		next.StartedAt = cloneTime(step.StartedAt)
		next.FinishedAt = cloneTime(step.FinishedAt)
		next.DurationMs = step.DurationMs
		steps[i] = next
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) ListSteps(_ context.Context, deploymentID uuid.UUID) ([]domain.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := s.steps[deploymentID]
	out := make([]domain.Step, 0, len(steps))
	for _, step := range steps {
		out = append(out, *step.Clone())
	}
	slices.SortStableFunc(out, func(a, b domain.Step) int {
		return a.Ordinal - b.Ordinal
	})
	return out, nil
}

func (s *MemoryStore) AppendAudit(_ context.Context, e *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.audit {
		if existing.ID == e.ID {
			return fmt.Errorf("audit entry %s: %w", e.ID, ErrAlreadyExists)
		}
	}
	s.audit = append(s.audit, cloneAudit(e))
	return nil
}

func (s *MemoryStore) ListAudit(_ context.Context, resourceType, resourceID string) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AuditEntry
	for _, e := range s.audit {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			out = append(out, *cloneAudit(e))
		}
	}
	return out, nil
}

func cloneDeployment(d *domain.Deployment) *domain.Deployment {
	c := *d
	c.StartedAt = cloneTime(d.StartedAt)
	c.CompletedAt = cloneTime(d.CompletedAt)
	return &c
}

func cloneAudit(e *domain.AuditEntry) *domain.AuditEntry {
	c := *e
	c.Before = slices.Clone(e.Before)
	c.After = slices.Clone(e.After)
	if e.Metadata != nil {
		c.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

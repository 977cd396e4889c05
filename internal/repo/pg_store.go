package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deployer/internal/domain"
)

// PgStore — реализация Store поверх PostgreSQL.
type PgStore struct {
	deployments *DeploymentRepo
	steps       *StepRepo
	audit       *AuditRepo
}

var _ Store = (*PgStore)(nil)

// NewPgStore создаёт PgStore на общем пуле.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{
		deployments: NewDeploymentRepo(pool),
		steps:       NewStepRepo(pool),
		audit:       NewAuditRepo(pool),
	}
}

func (s *PgStore) CreateDeployment(ctx context.Context, d *domain.Deployment) error {
	return s.deployments.Create(ctx, d)
}

func (s *PgStore) UpdateDeployment(ctx context.Context, d *domain.Deployment) error {
	return s.deployments.Update(ctx, d)
}

func (s *PgStore) GetDeployment(ctx context.Context, id uuid.UUID) (*domain.Deployment, error) {
	return s.deployments.GetByID(ctx, id)
}

func (s *PgStore) ListDeployments(ctx context.Context, filter DeploymentFilter) ([]domain.Deployment, error) {
	return s.deployments.List(ctx, filter)
}

func (s *PgStore) CreateStep(ctx context.Context, step *domain.Step) error {
	return s.steps.Create(ctx, step)
}

func (s *PgStore) UpdateStep(ctx context.Context, step *domain.Step) error {
	return s.steps.Update(ctx, step)
}

func (s *PgStore) ListSteps(ctx context.Context, deploymentID uuid.UUID) ([]domain.Step, error) {
	return s.steps.ListByDeploymentID(ctx, deploymentID)
}

func (s *PgStore) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	return s.audit.Append(ctx, e)
}

func (s *PgStore) ListAudit(ctx context.Context, resourceType, resourceID string) ([]domain.AuditEntry, error) {
	return s.audit.ListByResource(ctx, resourceType, resourceID)
}

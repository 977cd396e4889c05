package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/shaiso/Deployer/internal/domain"
)

// Store — хранилище деплоев, шагов и журнала аудита.
//
// Реализации: PgStore (PostgreSQL) и MemoryStore. Обе проходят общий
// набор тестов repotest.Run.
type Store interface {
	CreateDeployment(ctx context.Context, d *domain.Deployment) error
	UpdateDeployment(ctx context.Context, d *domain.Deployment) error
	GetDeployment(ctx context.Context, id uuid.UUID) (*domain.Deployment, error)
	ListDeployments(ctx context.Context, filter DeploymentFilter) ([]domain.Deployment, error)

	CreateStep(ctx context.Context, s *domain.Step) error
	UpdateStep(ctx context.Context, s *domain.Step) error
	ListSteps(ctx context.Context, deploymentID uuid.UUID) ([]domain.Step, error)

	AppendAudit(ctx context.Context, e *domain.AuditEntry) error
	ListAudit(ctx context.Context, resourceType, resourceID string) ([]domain.AuditEntry, error)
}

// DeploymentFilter — параметры фильтрации деплоев.
type DeploymentFilter struct {
	Environment domain.Environment
	Status      domain.DeploymentStatus
	Limit       int
	Offset      int
}

// DefaultLimit — размер страницы, если Limit не задан.
const DefaultLimit = 50

func (f DeploymentFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

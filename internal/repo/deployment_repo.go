package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deployer/internal/domain"
)

// DeploymentRepo — репозиторий для работы с deployments.
type DeploymentRepo struct {
	pool *pgxpool.Pool
}

// NewDeploymentRepo создаёт новый DeploymentRepo.
func NewDeploymentRepo(pool *pgxpool.Pool) *DeploymentRepo {
	return &DeploymentRepo{pool: pool}
}

const deploymentColumns = `
	id, environment, type, version, status, total_steps, completed_steps,
	failed_steps, skipped_steps, config, error, created_by, created_at,
	started_at, completed_at`

// Create создаёт новый деплой.
func (r *DeploymentRepo) Create(ctx context.Context, d *domain.Deployment) error {
	configJSON, err := json.Marshal(d.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query := `
		INSERT INTO deployments (` + deploymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err = r.pool.Exec(ctx, query,
		d.ID,
		d.Environment,
		d.Type,
		d.Version,
		d.Status,
		d.TotalSteps,
		d.CompletedSteps,
		d.FailedSteps,
		d.SkippedSteps,
		configJSON,
		nullString(d.Error),
		nullString(d.CreatedBy),
		d.CreatedAt,
		d.StartedAt,
		d.CompletedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("deployment %s: %w", d.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// Update обновляет статус, счётчики и время деплоя.
func (r *DeploymentRepo) Update(ctx context.Context, d *domain.Deployment) error {
	query := `
		UPDATE deployments
		SET status = $2, total_steps = $3, completed_steps = $4, failed_steps = $5,
		    skipped_steps = $6, error = $7, started_at = $8, completed_at = $9
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		d.ID,
		d.Status,
		d.TotalSteps,
		d.CompletedSteps,
		d.FailedSteps,
		d.SkippedSteps,
		nullString(d.Error),
		d.StartedAt,
		d.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID возвращает деплой по ID.
func (r *DeploymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`
	return scanDeployment(r.pool.QueryRow(ctx, query, id))
}

// List возвращает деплои с фильтрацией, новые первыми.
func (r *DeploymentRepo) List(ctx context.Context, filter DeploymentFilter) ([]domain.Deployment, error) {
	query := `
		SELECT ` + deploymentColumns + `
		FROM deployments
		WHERE ($1::text IS NULL OR environment = $1)
		  AND ($2::text IS NULL OR status = $2::deployment_status)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(filter.Environment)),
		nullString(string(filter.Status)),
		filter.limit(),
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var deployments []domain.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

// scanDeployment сканирует одну строку в Deployment.
// pgx.Rows удовлетворяет pgx.Row, поэтому функция общая для QueryRow и Query.
func scanDeployment(row pgx.Row) (*domain.Deployment, error) {
	var d domain.Deployment
	var configJSON []byte
	var deployErr, createdBy *string

	err := row.Scan(
		&d.ID,
		&d.Environment,
		&d.Type,
		&d.Version,
		&d.Status,
		&d.TotalSteps,
		&d.CompletedSteps,
		&d.FailedSteps,
		&d.SkippedSteps,
		&configJSON,
		&deployErr,
		&createdBy,
		&d.CreatedAt,
		&d.StartedAt,
		&d.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan deployment: %w", err)
	}

	if configJSON != nil {
		if err := json.Unmarshal(configJSON, &d.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if deployErr != nil {
		d.Error = *deployErr
	}
	if createdBy != nil {
		d.CreatedBy = *createdBy
	}

	return &d, nil
}

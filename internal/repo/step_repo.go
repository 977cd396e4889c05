package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deployer/internal/domain"
)

// StepRepo — репозиторий для работы с шагами деплоя.
type StepRepo struct {
	pool *pgxpool.Pool
}

// NewStepRepo создаёт новый StepRepo.
func NewStepRepo(pool *pgxpool.Pool) *StepRepo {
	return &StepRepo{pool: pool}
}

// Create сохраняет шаг плана.
func (r *StepRepo) Create(ctx context.Context, s *domain.Step) error {
	commandJSON, err := json.Marshal(s.Command)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	compensateJSON, err := marshalOptional(s.Compensate)
	if err != nil {
		return fmt.Errorf("marshal compensate: %w", err)
	}
	healthJSON, err := marshalOptional(s.HealthCheck)
	if err != nil {
		return fmt.Errorf("marshal health check: %w", err)
	}

	dependsOn := s.DependsOn
	if dependsOn == nil {
		dependsOn = []string{}
	}

	query := `
		INSERT INTO deployment_steps (deployment_id, id, name, kind, ordinal, command,
		                              depends_on, compensate, health_check, retries,
		                              timeout_sec, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.pool.Exec(ctx, query,
		s.DeploymentID,
		s.ID,
		s.Name,
		s.Kind,
		s.Ordinal,
		commandJSON,
		dependsOn,
		compensateJSON,
		healthJSON,
		s.Retries,
		s.TimeoutSec,
		s.Status,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("step %s: %w", s.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// Update обновляет статус и результат шага.
func (r *StepRepo) Update(ctx context.Context, s *domain.Step) error {
	query := `
		UPDATE deployment_steps
		SET status = $3, attempts = $4, output = $5, error = $6,
		    started_at = $7, finished_at = $8, duration_ms = $9
		WHERE deployment_id = $1 AND id = $2
	`
	result, err := r.pool.Exec(ctx, query,
		s.DeploymentID,
		s.ID,
		s.Status,
		s.Attempts,
		nullString(s.Output),
		nullString(s.Error),
		s.StartedAt,
		s.FinishedAt,
		s.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("update step: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByDeploymentID возвращает шаги деплоя в порядке плана.
func (r *StepRepo) ListByDeploymentID(ctx context.Context, deploymentID uuid.UUID) ([]domain.Step, error) {
	query := `
		SELECT deployment_id, id, name, kind, ordinal, command, depends_on, compensate,
		       health_check, retries, timeout_sec, status, attempts, output, error,
		       started_at, finished_at, duration_ms
		FROM deployment_steps
		WHERE deployment_id = $1
		ORDER BY ordinal ASC
	`
	rows, err := r.pool.Query(ctx, query, deploymentID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.Step
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *s)
	}
	return steps, rows.Err()
}

func scanStep(row pgx.Row) (*domain.Step, error) {
	var s domain.Step
	var commandJSON, compensateJSON, healthJSON []byte
	var output, stepErr *string

	err := row.Scan(
		&s.DeploymentID,
		&s.ID,
		&s.Name,
		&s.Kind,
		&s.Ordinal,
		&commandJSON,
		&s.DependsOn,
		&compensateJSON,
		&healthJSON,
		&s.Retries,
		&s.TimeoutSec,
		&s.Status,
		&s.Attempts,
		&output,
		&stepErr,
		&s.StartedAt,
		&s.FinishedAt,
		&s.DurationMs,
	)
	if err != nil {
		return nil, fmt.Errorf("scan step: %w", err)
	}

	if err := json.Unmarshal(commandJSON, &s.Command); err != nil {
		return nil, fmt.Errorf("unmarshal command: %w", err)
	}
	if compensateJSON != nil {
		s.Compensate = &domain.Command{}
		if err := json.Unmarshal(compensateJSON, s.Compensate); err != nil {
			return nil, fmt.Errorf("unmarshal compensate: %w", err)
		}
	}
	if healthJSON != nil {
		s.HealthCheck = &domain.HealthCheck{}
		if err := json.Unmarshal(healthJSON, s.HealthCheck); err != nil {
			return nil, fmt.Errorf("unmarshal health check: %w", err)
		}
	}
	if len(s.DependsOn) == 0 {
		s.DependsOn = nil
	}
	if output != nil {
		s.Output = *output
	}
	if stepErr != nil {
		s.Error = *stepErr
	}

	return &s, nil
}

// marshalOptional возвращает nil для nil-указателя (NULL в JSONB).
func marshalOptional[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

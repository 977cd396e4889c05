package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Deployer/internal/domain"
)

// AuditRepo — журнал аудита. Только дописывается.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepo создаёт новый AuditRepo.
func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Append добавляет запись в журнал.
func (r *AuditRepo) Append(ctx context.Context, e *domain.AuditEntry) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_log (id, resource_type, resource_id, action, actor, before,
		                       after, outcome, duration_ms, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.pool.Exec(ctx, query,
		e.ID,
		e.ResourceType,
		e.ResourceID,
		e.Action,
		nullString(e.Actor),
		rawOrNil(e.Before),
		rawOrNil(e.After),
		e.Outcome,
		e.DurationMs,
		metadataJSON,
		e.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("audit entry %s: %w", e.ID, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByResource возвращает записи ресурса в порядке добавления.
func (r *AuditRepo) ListByResource(ctx context.Context, resourceType, resourceID string) ([]domain.AuditEntry, error) {
	query := `
		SELECT id, resource_type, resource_id, action, actor, before, after, outcome,
		       duration_ms, metadata, created_at
		FROM audit_log
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var actor *string
		var before, after, metadataJSON []byte

		if err := rows.Scan(
			&e.ID,
			&e.ResourceType,
			&e.ResourceID,
			&e.Action,
			&actor,
			&before,
			&after,
			&e.Outcome,
			&e.DurationMs,
			&metadataJSON,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		if actor != nil {
			e.Actor = *actor
		}
		if before != nil {
			e.Before = before
		}
		if after != nil {
			e.After = after
		}
		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// rawOrNil не даёт записать пустой json.RawMessage как невалидный JSONB.
func rawOrNil(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

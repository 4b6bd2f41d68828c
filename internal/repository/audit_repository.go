package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// AuditRepository stores audit entries.
type AuditRepository interface {
	Create(ctx context.Context, record *domain.AuditRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.AuditRecord, error)
}

type auditRepository struct {
	db *DB
}

// NewAuditRepository builds repository.
func NewAuditRepository(db *DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, record *domain.AuditRecord) error {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO audit_logs (event_type, actor_id, actor_role, target_type, target_id, payload, recorded_at)
        VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7)
        RETURNING id::text`
	err = r.db.pool.QueryRow(ctx, query,
		record.EventType,
		record.ActorID,
		string(record.ActorRole),
		record.TargetType,
		record.TargetID,
		string(payload),
		record.RecordedAt,
	).Scan(&record.ID)
	return r.db.fail("audit.create", err)
}

func (r *auditRepository) ListRecent(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT id::text, event_type, actor_id, actor_role, target_type, target_id, payload, recorded_at
        FROM audit_logs ORDER BY recorded_at DESC LIMIT $1`
	rows, err := r.db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, r.db.fail("audit.list_recent", err)
	}
	defer rows.Close()

	result := []domain.AuditRecord{}
	for rows.Next() {
		var (
			record  domain.AuditRecord
			role    string
			payload []byte
		)
		if err := rows.Scan(
			&record.ID,
			&record.EventType,
			&record.ActorID,
			&role,
			&record.TargetType,
			&record.TargetID,
			&payload,
			&record.RecordedAt,
		); err != nil {
			return nil, r.db.fail("audit.list_recent", err)
		}
		record.ActorRole = domain.Role(role)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &record.Payload); err != nil {
				return nil, fmt.Errorf("decode audit payload: %w", err)
			}
		}
		result = append(result, record)
	}
	return result, r.db.fail("audit.list_recent", rows.Err())
}

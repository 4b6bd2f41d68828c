package dto

import (
	"time"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

// AuditRecordResponse is the public view of an audit entry.
type AuditRecordResponse struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	ActorID    string         `json:"actor_id"`
	ActorRole  domain.Role    `json:"actor_role"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Payload    map[string]any `json:"payload"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// NewAuditList maps audit records.
func NewAuditList(records []domain.AuditRecord) []AuditRecordResponse {
	items := make([]AuditRecordResponse, 0, len(records))
	for _, r := range records {
		items = append(items, AuditRecordResponse{
			ID:         r.ID,
			EventType:  r.EventType,
			ActorID:    r.ActorID,
			ActorRole:  r.ActorRole,
			TargetType: r.TargetType,
			TargetID:   r.TargetID,
			Payload:    r.Payload,
			RecordedAt: r.RecordedAt,
		})
	}
	return items
}

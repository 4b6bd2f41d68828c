package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/domain"
	"github.com/spec-kit/marketplace-service/internal/events"
	"github.com/spec-kit/marketplace-service/internal/policy"
	"github.com/spec-kit/marketplace-service/internal/repository"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditService records every published domain event in the audit trail.
type AuditService struct {
	dispatcher events.Dispatcher
	audits     repository.AuditRepository
	policy     *policy.Policy
	logger     *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, audits repository.AuditRepository, pol *policy.Policy, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{
		dispatcher: dispatcher,
		audits:     audits,
		policy:     pol,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to every event type.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for _, eventType := range events.AllEventTypes {
		a.dispatcher.Subscribe(eventType, a.record)
	}
}

// record writes the event. Failures are logged and swallowed so the
// originating workflow never sees them.
func (a *AuditService) record(ctx context.Context, event events.Event) error {
	entry := &domain.AuditRecord{
		EventType:  string(event.Type),
		ActorID:    event.Actor.UserID,
		ActorRole:  event.Actor.Role,
		TargetType: event.TargetType,
		TargetID:   event.TargetID,
		Payload:    payloadMap(event.Payload),
		RecordedAt: event.Timestamp,
	}
	if err := a.audits.Create(ctx, entry); err != nil {
		a.logger.Error("audit record failed",
			zap.String("event_type", entry.EventType),
			zap.String("target_type", entry.TargetType),
			zap.String("target_id", entry.TargetID),
			zap.Error(err))
		return nil
	}
	a.logger.Debug("audit recorded",
		zap.String("event_type", entry.EventType),
		zap.String("target_id", entry.TargetID),
		zap.String("actor_id", entry.ActorID))
	return nil
}

// ListRecent returns the newest audit records.
func (a *AuditService) ListRecent(ctx context.Context, actor domain.Actor, limit int) ([]domain.AuditRecord, error) {
	if err := a.policy.Require(policy.AuditList, actor); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	return a.audits.ListRecent(ctx, limit)
}

func payloadMap(payload any) map[string]any {
	result := map[string]any{}
	if payload == nil {
		return result
	}
	if m, ok := payload.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return result
	}
	_ = json.Unmarshal(raw, &result)
	return result
}

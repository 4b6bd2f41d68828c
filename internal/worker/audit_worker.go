package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-service/internal/realtime"
	"github.com/spec-kit/marketplace-service/internal/service"
)

const bridgeRetryDelay = 2 * time.Second

// StartAuditWorker registers the audit trail handlers on the dispatcher.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}

// StartChatBridge relays chat frames published by other instances into the
// local registry until ctx is cancelled. A broken subscription is retried.
func StartChatBridge(ctx context.Context, bridge *realtime.RedisBridge, logger *zap.Logger) {
	if bridge == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		for {
			err := bridge.Run(ctx)
			if ctx.Err() != nil {
				return
			}
			logger.Warn("chat redis bridge stopped, retrying", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(bridgeRetryDelay):
			}
		}
	}()
}

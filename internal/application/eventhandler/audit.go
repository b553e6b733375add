package eventhandler

import (
	"context"

	"github.com/learnpath/academy-hub/internal/domain/shared"
	"github.com/learnpath/academy-hub/pkg/logger"
)

// AuditLogger writes every event to the log. Subscribe it with SubscribeAll.
type AuditLogger struct {
	logger *logger.Logger
}

// NewAuditLogger creates an AuditLogger.
func NewAuditLogger(log *logger.Logger) *AuditLogger {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditLogger{logger: log.Named("audit")}
}

// Handle implements shared.EventHandler.
func (a *AuditLogger) Handle(_ context.Context, event shared.Event) error {
	a.logger.Info("event",
		logger.String("event_type", string(event.EventType())),
		logger.String("aggregate_id", event.AggregateID()),
		logger.Time("occurred_at", event.OccurredAt()),
		logger.Any("payload", event.Payload()),
	)
	return nil
}

package engine

import (
	"context"

	"github.com/smilemakc/dagengine/internal/logging"
)

// LoggerObserver logs every execution event through a structured
// logger, registered by default on every Engine.
type LoggerObserver struct {
	log *logging.Logger
}

// NewLoggerObserver builds an Observer that logs to log.
func NewLoggerObserver(log *logging.Logger) *LoggerObserver {
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) Name() string { return "logger" }

func (o *LoggerObserver) OnEvent(ctx context.Context, event *Event) error {
	fields := []any{
		"event_type", event.Type,
		"request_id", event.RequestID,
		"plan_name", event.PlanName,
	}
	if event.NodeID != "" {
		fields = append(fields, "node_id", event.NodeID)
	}
	if event.Error != "" {
		fields = append(fields, "error", event.Error)
		o.log.ErrorContext(ctx, "execution event", fields...)
		return nil
	}
	o.log.InfoContext(ctx, "execution event", fields...)
	return nil
}

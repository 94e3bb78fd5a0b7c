// Package sinks contains Sink implementations for the event hub.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/voyago/leadharvest/internal/event"
)

// LogSink emits structured logs for every event; useful during development
// and compliance audits when no durable sink is configured.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the Sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []event.Event) error {
	for _, evt := range batch {
		s.logger.Info("crawl event",
			zap.String("stage", string(evt.Stage)),
			zap.String("url", evt.URL),
			zap.String("domain", evt.Domain),
			zap.Int("tier", evt.Tier),
			zap.String("outcome", evt.Outcome),
			zap.String("status", evt.Status),
			zap.String("lead_id", evt.LeadID),
			zap.String("op", evt.Op),
			zap.Float64("score", evt.Score),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error { return nil }

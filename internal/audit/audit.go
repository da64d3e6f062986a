// Package audit is the fire-and-forget case-recording boundary. Callers log
// sink failures and move on; a broken audit sink never blocks routing.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/models"
)

// Case kinds recorded by the core.
const (
	CaseThreadCreated = "modmail_thread_created"
	CaseThreadClosed  = "modmail_thread_closed"
	CaseUserBlocked   = "modmail_user_blocked"
	CaseEscalated     = "modmail_escalated"
)

type Sink interface {
	RecordCase(ctx context.Context, kind string, actor, target models.Actor, reason string) error
}

// LogSink records cases to the structured log. The default sink when no
// external modlog is wired.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) RecordCase(ctx context.Context, kind string, actor, target models.Actor, reason string) error {
	s.logger.Info("audit case",
		zap.String("kind", kind),
		zap.String("actor", actor.ID),
		zap.String("target", target.ID),
		zap.String("reason", reason))
	return nil
}

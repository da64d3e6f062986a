package router

import (
	"context"

	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/audit"
	"github.com/xaenox/modmail/internal/hooks"
	"github.com/xaenox/modmail/internal/models"
)

// BlockUser blocks a user from modmail, records the audit case and publishes
// the user_blocked event. The registry itself stays side-effect-free; this
// wrapper is the command-surface path.
func (r *Router) BlockUser(ctx context.Context, userID, guildID, reason string, by models.Actor) error {
	if err := r.blocks.Block(ctx, userID, guildID, reason, by); err != nil {
		return err
	}

	auditReason := reason
	if auditReason == "" {
		auditReason = "No reason provided"
	}
	if err := r.audit.RecordCase(ctx, audit.CaseUserBlocked,
		by, models.Actor{ID: userID}, auditReason); err != nil {
		r.logger.Error("failed to record audit case", zap.Error(err))
	}

	r.dispatcher.Publish(ctx, hooks.UserBlocked, models.UserBlockedEvent{
		UserID:    userID,
		GuildID:   guildID,
		BlockedBy: by.ID,
		Reason:    reason,
	})
	return nil
}

// UnblockUser lifts a block. Not an error if the user was never blocked.
func (r *Router) UnblockUser(ctx context.Context, userID, guildID string) error {
	return r.blocks.Unblock(ctx, userID, guildID)
}

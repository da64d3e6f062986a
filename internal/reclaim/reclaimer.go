// Package reclaim closes threads that have sat idle past the guild's
// auto-close threshold, using the same close path staff use interactively.
package reclaim

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/models"
	"github.com/xaenox/modmail/internal/storage"
	"github.com/xaenox/modmail/internal/thread"
)

// AutoCloseReason is the close reason applied by the sweep.
const AutoCloseReason = "auto-closed due to inactivity"

type Reclaimer struct {
	store   storage.Storage
	threads *thread.Manager
	logger  *zap.Logger
	now     func() time.Time
}

func NewReclaimer(store storage.Storage, threads *thread.Manager, logger *zap.Logger) *Reclaimer {
	return &Reclaimer{
		store:   store,
		threads: threads,
		logger:  logger,
		now:     time.Now,
	}
}

// Run sweeps on the given interval until ctx is cancelled.
func (r *Reclaimer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep closes every open thread idle past its guild threshold. Failures on
// one thread are logged and do not stop the sweep. Returns the number of
// threads closed.
func (r *Reclaimer) Sweep(ctx context.Context) int {
	guilds, err := r.store.ListEnabledGuilds(ctx)
	if err != nil {
		r.logger.Error("reclaim sweep failed to list guilds", zap.Error(err))
		return 0
	}

	closed := 0
	for _, guildID := range guilds {
		policy, err := r.store.GetGuildPolicy(ctx, guildID)
		if err != nil {
			r.logger.Error("reclaim sweep failed to load policy",
				zap.String("guild_id", guildID), zap.Error(err))
			continue
		}
		if policy == nil || !policy.Enabled || policy.Threads.AutoCloseAfter <= 0 {
			continue
		}

		closed += r.sweepGuild(ctx, policy)
	}
	return closed
}

func (r *Reclaimer) sweepGuild(ctx context.Context, policy *models.GuildPolicy) int {
	open, err := r.store.ListThreads(ctx, policy.GuildID, models.ThreadOpen)
	if err != nil {
		r.logger.Error("reclaim sweep failed to list threads",
			zap.String("guild_id", policy.GuildID), zap.Error(err))
		return 0
	}

	cutoff := r.now().Add(-policy.Threads.AutoCloseAfter)
	closed := 0
	for _, th := range open {
		if th.IdleSince().After(cutoff) {
			continue
		}

		if _, err := r.threads.Close(ctx, policy.GuildID, th.ID, models.SystemActor(), AutoCloseReason, policy); err != nil {
			r.logger.Error("failed to auto-close thread",
				zap.String("guild_id", policy.GuildID),
				zap.String("thread_id", th.ID), zap.Error(err))
			continue
		}
		closed++
	}

	if closed > 0 {
		r.logger.Info("auto-closed idle threads",
			zap.String("guild_id", policy.GuildID),
			zap.Int("count", closed))
	}
	return closed
}

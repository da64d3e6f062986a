// Package block answers "is this user blocked from modmail" at three scopes:
// the global block map, the user record flag, and the guild block list.
package block

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/models"
	"github.com/xaenox/modmail/internal/storage"
)

type Registry struct {
	store  storage.Storage
	logger *zap.Logger
	now    func() time.Time
}

func NewRegistry(store storage.Storage, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// IsBlocked short-circuits on the first matching scope. guildID may be empty
// to skip the guild-scoped check.
func (r *Registry) IsBlocked(ctx context.Context, userID, guildID string) (bool, error) {
	global, err := r.store.GloballyBlocked(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("checking global block: %w", err)
	}
	if global {
		return true, nil
	}

	rec, err := r.store.GetUserRecord(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("checking user record: %w", err)
	}
	if rec != nil && rec.Blocked {
		return true, nil
	}

	if guildID != "" {
		policy, err := r.store.GetGuildPolicy(ctx, guildID)
		if err != nil {
			return false, fmt.Errorf("checking guild block list: %w", err)
		}
		if policy != nil {
			for _, id := range policy.BlockedUsers {
				if id == userID {
					return true, nil
				}
			}
		}
	}

	return false, nil
}

// Block marks the user record and adds the user to the guild block list.
// Re-blocking an already-blocked user overwrites reason, actor and time.
func (r *Registry) Block(ctx context.Context, userID, guildID, reason string, by models.Actor) error {
	now := r.now().UTC()
	_, err := r.store.UpdateUserRecord(ctx, userID, func(rec *models.UserRecord) error {
		rec.Blocked = true
		rec.BlockReason = reason
		rec.BlockedAt = &now
		rec.BlockedBy = by.ID
		return nil
	})
	if err != nil {
		return fmt.Errorf("blocking user %s: %w", userID, err)
	}

	if guildID != "" {
		if err := r.updateGuildBlockList(ctx, guildID, userID, true); err != nil {
			return err
		}
	}

	r.logger.Info("user blocked",
		zap.String("user_id", userID),
		zap.String("guild_id", guildID),
		zap.String("blocked_by", by.ID),
		zap.String("reason", reason))
	return nil
}

// Unblock clears the user record and removes the user from the guild block
// list. Unblocking a user who was never blocked is not an error.
func (r *Registry) Unblock(ctx context.Context, userID, guildID string) error {
	_, err := r.store.UpdateUserRecord(ctx, userID, func(rec *models.UserRecord) error {
		rec.Blocked = false
		rec.BlockReason = ""
		rec.BlockedAt = nil
		rec.BlockedBy = ""
		return nil
	})
	if err != nil {
		return fmt.Errorf("unblocking user %s: %w", userID, err)
	}

	if guildID != "" {
		if err := r.updateGuildBlockList(ctx, guildID, userID, false); err != nil {
			return err
		}
	}

	r.logger.Info("user unblocked",
		zap.String("user_id", userID),
		zap.String("guild_id", guildID))
	return nil
}

func (r *Registry) updateGuildBlockList(ctx context.Context, guildID, userID string, add bool) error {
	policy, err := r.store.GetGuildPolicy(ctx, guildID)
	if err != nil {
		return fmt.Errorf("loading guild policy: %w", err)
	}
	if policy == nil {
		// Guild has never been configured; nothing to update.
		return nil
	}

	blocked := policy.BlockedUsers[:0:0]
	for _, id := range policy.BlockedUsers {
		if id != userID {
			blocked = append(blocked, id)
		}
	}
	if add {
		blocked = append(blocked, userID)
	}
	policy.BlockedUsers = blocked

	if err := r.store.PutGuildPolicy(ctx, policy); err != nil {
		return fmt.Errorf("saving guild block list: %w", err)
	}
	return nil
}

// Package router is the entry point for inbound user messages and outbound
// staff replies. Intake runs the eligibility, block and rate-limit gates
// before handing off to the thread manager and the transport.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/audit"
	"github.com/xaenox/modmail/internal/block"
	"github.com/xaenox/modmail/internal/hooks"
	"github.com/xaenox/modmail/internal/models"
	"github.com/xaenox/modmail/internal/ratelimit"
	"github.com/xaenox/modmail/internal/storage"
	"github.com/xaenox/modmail/internal/thread"
	"github.com/xaenox/modmail/internal/transport"
)

// ErrThreadNotActive is returned by Relay when the target thread is missing
// or no longer open.
var ErrThreadNotActive = errors.New("thread is not active")

// ErrSnippetNotFound is returned by UseSnippet for an unknown snippet name.
var ErrSnippetNotFound = errors.New("snippet not found")

// RouteStatus is the outcome of an intake attempt.
type RouteStatus string

const (
	Delivered      RouteStatus = "delivered"
	NoTarget       RouteStatus = "no_target"
	Blocked        RouteStatus = "blocked"
	RateLimited    RouteStatus = "rate_limited"
	DeliveryFailed RouteStatus = "delivery_failed"
)

// RouteResult reports where a message went. Notice carries the
// policy-configured cooldown message for RateLimited results.
type RouteResult struct {
	Status   RouteStatus
	GuildID  string
	ThreadID string
	Notice   string
}

type Router struct {
	store      storage.Storage
	blocks     *block.Registry
	limiter    *ratelimit.Limiter
	threads    *thread.Manager
	transport  transport.Transport
	dispatcher *hooks.Dispatcher
	audit      audit.Sink
	logger     *zap.Logger
	now        func() time.Time
}

func New(store storage.Storage, blocks *block.Registry, limiter *ratelimit.Limiter, threads *thread.Manager, tp transport.Transport, dispatcher *hooks.Dispatcher, sink audit.Sink, logger *zap.Logger) *Router {
	return &Router{
		store:      store,
		blocks:     blocks,
		limiter:    limiter,
		threads:    threads,
		transport:  tp,
		dispatcher: dispatcher,
		audit:      sink,
		logger:     logger,
		now:        time.Now,
	}
}

// Intake routes an inbound user message to the first eligible guild in the
// supplied candidate ordering. Blocked users are dropped silently so the
// block status is never confirmed to them.
func (r *Router) Intake(ctx context.Context, userID string, candidateGuilds []string, msg models.InboundMessage) (RouteResult, error) {
	var (
		target  *models.GuildPolicy
		profile models.UserProfile
	)
	for _, guildID := range candidateGuilds {
		policy, err := r.store.GetGuildPolicy(ctx, guildID)
		if err != nil {
			r.logger.Error("failed to load guild policy",
				zap.String("guild_id", guildID), zap.Error(err))
			continue
		}
		if policy == nil || !policy.Enabled {
			continue
		}

		p, err := r.transport.Profile(ctx, guildID, userID)
		if err != nil {
			r.logger.Warn("failed to load user profile, skipping guild",
				zap.String("guild_id", guildID),
				zap.String("user_id", userID), zap.Error(err))
			continue
		}

		if Eligible(p, policy.Requirements, r.now()) {
			target = policy
			profile = p
			break
		}
	}
	if target == nil {
		return RouteResult{Status: NoTarget}, nil
	}

	blocked, err := r.blocks.IsBlocked(ctx, userID, target.GuildID)
	if err != nil {
		return RouteResult{Status: DeliveryFailed, GuildID: target.GuildID}, err
	}
	if blocked {
		return RouteResult{Status: Blocked, GuildID: target.GuildID}, nil
	}

	if r.limiter.Limited(userID, target.GuildID, target.RateLimit) {
		return RouteResult{
			Status:  RateLimited,
			GuildID: target.GuildID,
			Notice:  target.RateLimit.CooldownMessage,
		}, nil
	}

	th, created, err := r.threads.GetOrCreate(ctx, profile, target)
	if err != nil {
		r.logger.Error("failed to get or create thread",
			zap.String("guild_id", target.GuildID),
			zap.String("user_id", userID), zap.Error(err))
		return RouteResult{Status: DeliveryFailed, GuildID: target.GuildID}, err
	}

	var header *models.UserSummary
	if created && target.ShowUserInfo {
		header = r.userSummary(ctx, profile)
	}

	if err := r.transport.ForwardToSurface(ctx, th.ChannelID, msg, profile, header); err != nil {
		if _, ok := err.(*transport.DeliveryError); !ok {
			err = &transport.DeliveryError{Target: th.ChannelID, Err: err}
		}
		r.logger.Error("failed to forward message to thread",
			zap.String("thread_id", th.ID), zap.Error(err))
		return RouteResult{Status: DeliveryFailed, GuildID: target.GuildID, ThreadID: th.ID}, err
	}

	first, err := r.threads.RecordMessage(ctx, target.GuildID, th.ID, true)
	if err != nil {
		// The message already reached staff; a counter miss is recoverable.
		r.logger.Error("failed to record message",
			zap.String("thread_id", th.ID), zap.Error(err))
	}

	if first && target.AutoResponse.Enabled {
		notice := transport.Notice{
			Title: "Modmail Received",
			Body:  target.AutoResponse.Message,
			From:  target.Name,
		}
		if err := r.transport.DeliverToUser(ctx, userID, notice); err != nil {
			r.logger.Warn("failed to send auto-response",
				zap.String("user_id", userID), zap.Error(err))
		}
	}

	r.dispatcher.Publish(ctx, hooks.MessageProcessed, models.MessageEvent{
		ThreadID:    th.ID,
		UserID:      userID,
		GuildID:     target.GuildID,
		Content:     msg.Content,
		Attachments: msg.Attachments,
		Timestamp:   msg.Timestamp,
	})

	return RouteResult{Status: Delivered, GuildID: target.GuildID, ThreadID: th.ID}, nil
}

// Relay sends a staff-authored reply to the thread's user. When anonymous is
// true (or the guild policy forces it) the author is shown as generic staff.
func (r *Router) Relay(ctx context.Context, guildID, threadID string, staff models.Actor, content string, anonymous bool) error {
	th, err := r.store.GetThread(ctx, guildID, threadID)
	if err != nil {
		return fmt.Errorf("loading thread %s: %w", threadID, err)
	}
	if th == nil || th.Status != models.ThreadOpen {
		return ErrThreadNotActive
	}

	policy, err := r.store.GetGuildPolicy(ctx, guildID)
	if err != nil {
		return fmt.Errorf("loading guild policy: %w", err)
	}
	guildName := guildID
	if policy != nil {
		guildName = policy.Name
		anonymous = anonymous || policy.AnonymousStaff
	}

	from := fmt.Sprintf("%s - %s", staff.Name, guildName)
	if anonymous {
		from = fmt.Sprintf("Staff - %s", guildName)
	}

	notice := transport.Notice{
		Body:   content,
		From:   from,
		Footer: "You can reply to this message to continue the conversation.",
	}
	if err := r.transport.DeliverToUser(ctx, th.UserID, notice); err != nil {
		if _, ok := err.(*transport.DeliveryError); !ok {
			err = &transport.DeliveryError{Target: th.UserID, Err: err}
		}
		return err
	}

	if _, err := r.threads.RecordMessage(ctx, guildID, threadID, false); err != nil {
		r.logger.Error("failed to record staff reply",
			zap.String("thread_id", threadID), zap.Error(err))
	}
	return nil
}

func (r *Router) userSummary(ctx context.Context, profile models.UserProfile) *models.UserSummary {
	summary := &models.UserSummary{Profile: profile}
	rec, err := r.store.GetUserRecord(ctx, profile.UserID)
	if err != nil {
		r.logger.Warn("failed to load user record for summary",
			zap.String("user_id", profile.UserID), zap.Error(err))
		return summary
	}
	summary.TotalThreads = rec.TotalThreads
	summary.LastThreadAt = rec.LastThreadAt
	return summary
}

// Package thread owns the per-conversation state machine: creation behind a
// one-active-thread-per-user-per-guild invariant, forward-only status
// transitions, and message accounting.
package thread

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xaenox/modmail/internal/audit"
	"github.com/xaenox/modmail/internal/hooks"
	"github.com/xaenox/modmail/internal/models"
	"github.com/xaenox/modmail/internal/storage"
	"github.com/xaenox/modmail/internal/transport"
)

// ValidationError reports bad caller input, e.g. a missing close reason.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

type Manager struct {
	store      storage.Storage
	transport  transport.Transport
	dispatcher *hooks.Dispatcher
	audit      audit.Sink
	logger     *zap.Logger
	creating   singleflight.Group
	now        func() time.Time
}

func NewManager(store storage.Storage, tp transport.Transport, dispatcher *hooks.Dispatcher, sink audit.Sink, logger *zap.Logger) *Manager {
	return &Manager{
		store:      store,
		transport:  tp,
		dispatcher: dispatcher,
		audit:      sink,
		logger:     logger,
		now:        time.Now,
	}
}

type getOrCreateResult struct {
	thread  *models.Thread
	created bool
}

// GetOrCreate returns the user's open thread in the guild, creating one if
// none exists. Concurrent calls for the same (guild, user) collapse onto a
// single creation; losers receive the winner's thread. The returned bool is
// true when this call created the thread.
func (m *Manager) GetOrCreate(ctx context.Context, user models.UserProfile, policy *models.GuildPolicy) (*models.Thread, bool, error) {
	key := fmt.Sprintf("%s:%s", policy.GuildID, user.UserID)
	v, err, _ := m.creating.Do(key, func() (any, error) {
		return m.getOrCreate(ctx, user, policy)
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(getOrCreateResult)
	return res.thread, res.created, nil
}

func (m *Manager) getOrCreate(ctx context.Context, user models.UserProfile, policy *models.GuildPolicy) (any, error) {
	guildID := policy.GuildID

	ptr, err := m.store.GetConversation(ctx, guildID, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation pointer: %w", err)
	}

	if ptr != nil && ptr.ActiveThreadID != "" {
		existing, err := m.store.GetThread(ctx, guildID, ptr.ActiveThreadID)
		if err != nil {
			return nil, fmt.Errorf("loading active thread: %w", err)
		}
		if existing != nil && existing.Status == models.ThreadOpen &&
			m.transport.SurfaceExists(ctx, guildID, existing.ChannelID) {
			return getOrCreateResult{thread: existing}, nil
		}
		// Pointer is stale: thread closed out-of-band or surface gone.
		m.logger.Warn("stale active thread pointer, creating a fresh thread",
			zap.String("guild_id", guildID),
			zap.String("user_id", user.UserID),
			zap.String("thread_id", ptr.ActiveThreadID))
	}

	surfaceRef, err := m.transport.ProvisionSurface(ctx, policy, user)
	if err != nil {
		if _, ok := err.(*transport.ProvisioningError); !ok {
			err = &transport.ProvisioningError{GuildID: guildID, Err: err}
		}
		return nil, err
	}

	now := m.now().UTC()
	u := uuid.New()
	thread := &models.Thread{
		ID:           fmt.Sprintf("%s-%s-%x", user.UserID, guildID, u[:4]),
		GuildID:      guildID,
		UserID:       user.UserID,
		ChannelID:    surfaceRef,
		CreatedAt:    now,
		Status:       models.ThreadOpen,
		Priority:     models.PriorityNormal,
		Category:     "general",
		Participants: []string{user.UserID},
	}

	if err := m.store.PutThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("persisting thread: %w", err)
	}

	if ptr == nil {
		ptr = &models.ConversationPointer{GuildID: guildID, UserID: user.UserID}
	}
	ptr.ActiveThreadID = thread.ID
	ptr.ThreadHistory = append(ptr.ThreadHistory, thread.ID)
	if err := m.store.PutConversation(ctx, ptr); err != nil {
		return nil, fmt.Errorf("persisting conversation pointer: %w", err)
	}

	if _, err := m.store.IncrementThreadsCreated(ctx); err != nil {
		m.logger.Error("failed to increment thread counter", zap.Error(err))
	}
	if _, err := m.store.UpdateUserRecord(ctx, user.UserID, func(rec *models.UserRecord) error {
		rec.TotalThreads++
		rec.LastThreadAt = &now
		return nil
	}); err != nil {
		m.logger.Error("failed to update user record", zap.Error(err))
	}

	if err := m.audit.RecordCase(ctx, audit.CaseThreadCreated,
		models.Actor{ID: user.UserID, Name: user.Username},
		models.Actor{ID: user.UserID, Name: user.Username},
		fmt.Sprintf("modmail thread %s created", thread.ID)); err != nil {
		m.logger.Error("failed to record audit case", zap.Error(err))
	}

	m.dispatcher.Publish(ctx, hooks.ThreadCreated, thread.Clone())

	m.logger.Info("modmail thread created",
		zap.String("thread_id", thread.ID),
		zap.String("guild_id", guildID),
		zap.String("user_id", user.UserID))

	return getOrCreateResult{thread: thread, created: true}, nil
}

// Close transitions an open thread to closed. Closing an already-closed
// thread is a no-op returning the existing record; concurrent close attempts
// produce exactly one transition.
func (m *Manager) Close(ctx context.Context, guildID, threadID string, closer models.Actor, reason string, policy *models.GuildPolicy) (*models.Thread, error) {
	if policy.Threads.RequireCloseReason && reason == "" {
		return nil, &ValidationError{Msg: "a close reason is required"}
	}

	now := m.now().UTC()
	already := false
	updated, err := m.store.UpdateThread(ctx, guildID, threadID, func(t *models.Thread) error {
		if t.Status != models.ThreadOpen {
			already = true
			return nil
		}
		t.Status = models.ThreadClosed
		t.ClosedAt = &now
		t.CloseReason = reason
		t.ClosedBy = closer.ID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("closing thread %s: %w", threadID, err)
	}
	if already {
		return updated, nil
	}

	ptr, err := m.store.GetConversation(ctx, guildID, updated.UserID)
	if err != nil {
		m.logger.Error("failed to load conversation pointer on close", zap.Error(err))
	} else if ptr != nil && ptr.ActiveThreadID == threadID {
		ptr.ActiveThreadID = ""
		if err := m.store.PutConversation(ctx, ptr); err != nil {
			m.logger.Error("failed to clear active thread pointer", zap.Error(err))
		}
	}

	if policy.Threads.NotifyOnClose {
		notice := transport.Notice{
			Title:  "Thread Closed",
			Body:   fmt.Sprintf("Your modmail thread in %s has been closed.", policy.Name),
			From:   closer.Name,
			Footer: "Thank you for contacting us!",
		}
		if reason != "" {
			notice.Fields = map[string]string{"Reason": reason}
		}
		if err := m.transport.DeliverToUser(ctx, updated.UserID, notice); err != nil {
			m.logger.Warn("failed to notify user of close",
				zap.String("user_id", updated.UserID), zap.Error(err))
		}
	}

	if policy.Threads.DeleteOnClose {
		if err := m.transport.DeleteSurface(ctx, guildID, updated.ChannelID,
			fmt.Sprintf("modmail thread closed by %s", closer.Name)); err != nil {
			m.logger.Warn("failed to delete thread surface", zap.Error(err))
		}
	} else {
		if err := m.transport.ArchiveSurface(ctx, guildID, updated.ChannelID); err != nil {
			m.logger.Warn("failed to archive thread surface", zap.Error(err))
		}
	}

	auditReason := reason
	if auditReason == "" {
		auditReason = "No reason provided"
	}
	if err := m.audit.RecordCase(ctx, audit.CaseThreadClosed,
		closer, models.Actor{ID: updated.UserID}, auditReason); err != nil {
		m.logger.Error("failed to record audit case", zap.Error(err))
	}

	m.dispatcher.Publish(ctx, hooks.ThreadClosed, models.ThreadClosedEvent{
		Thread: updated.Clone(),
		Reason: reason,
	})

	m.logger.Info("modmail thread closed",
		zap.String("thread_id", threadID),
		zap.String("guild_id", guildID),
		zap.String("closed_by", closer.ID),
		zap.String("reason", reason))

	return updated, nil
}

// Archive moves a closed thread to archived. Archiving an archived thread is
// a no-op; archiving an open thread is a validation error.
func (m *Manager) Archive(ctx context.Context, guildID, threadID string) (*models.Thread, error) {
	updated, err := m.store.UpdateThread(ctx, guildID, threadID, func(t *models.Thread) error {
		switch t.Status {
		case models.ThreadArchived:
			return nil
		case models.ThreadClosed:
			t.Status = models.ThreadArchived
			return nil
		default:
			return &ValidationError{Msg: "only closed threads can be archived"}
		}
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordMessage increments the thread's message counter and refreshes its
// last-activity time. The returned bool is true when this was the first
// user message on the thread; the caller decides whether that triggers the
// auto-response.
func (m *Manager) RecordMessage(ctx context.Context, guildID, threadID string, fromUser bool) (bool, error) {
	now := m.now().UTC()
	first := false
	_, err := m.store.UpdateThread(ctx, guildID, threadID, func(t *models.Thread) error {
		first = t.MessageCount == 0 && fromUser
		t.MessageCount++
		t.LastMessageAt = &now
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("recording message on thread %s: %w", threadID, err)
	}
	return first, nil
}

// Escalate marks an open thread escalated. Re-escalating overwrites the
// escalation metadata.
func (m *Manager) Escalate(ctx context.Context, guildID, threadID string, by models.Actor, reason string) (*models.Thread, error) {
	now := m.now().UTC()
	updated, err := m.store.UpdateThread(ctx, guildID, threadID, func(t *models.Thread) error {
		if t.Status != models.ThreadOpen {
			return &ValidationError{Msg: "only open threads can be escalated"}
		}
		t.Escalated = true
		t.EscalatedBy = by.ID
		t.EscalatedAt = &now
		t.EscalationReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := m.audit.RecordCase(ctx, audit.CaseEscalated,
		by, models.Actor{ID: updated.UserID}, reason); err != nil {
		m.logger.Error("failed to record audit case", zap.Error(err))
	}
	return updated, nil
}

package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xaenox/modmail/internal/hooks"
	"github.com/xaenox/modmail/internal/models"
)

// UseSnippet sends a named canned reply into the thread, substituting the
// {user}, {username}, {server} and {staff} variables, and tracks usage.
// Returns the substituted content.
func (r *Router) UseSnippet(ctx context.Context, guildID, threadID, name string, staff models.Actor) (string, error) {
	snippet, err := r.store.GetSnippet(ctx, guildID, name)
	if err != nil {
		return "", fmt.Errorf("loading snippet %s: %w", name, err)
	}
	if snippet == nil {
		return "", ErrSnippetNotFound
	}

	th, err := r.store.GetThread(ctx, guildID, threadID)
	if err != nil {
		return "", fmt.Errorf("loading thread %s: %w", threadID, err)
	}
	if th == nil || th.Status != models.ThreadOpen {
		return "", ErrThreadNotActive
	}

	policy, err := r.store.GetGuildPolicy(ctx, guildID)
	if err != nil {
		return "", fmt.Errorf("loading guild policy: %w", err)
	}
	guildName := guildID
	if policy != nil {
		guildName = policy.Name
	}

	username := th.UserID
	if profile, err := r.transport.Profile(ctx, guildID, th.UserID); err == nil {
		username = profile.Username
	}

	content := snippet.Content
	content = strings.ReplaceAll(content, "{user}", username)
	content = strings.ReplaceAll(content, "{username}", username)
	content = strings.ReplaceAll(content, "{server}", guildName)
	content = strings.ReplaceAll(content, "{staff}", staff.Name)

	if err := r.Relay(ctx, guildID, threadID, staff, content, false); err != nil {
		return "", err
	}

	if err := r.store.IncrementSnippetUsage(ctx, guildID, name); err != nil {
		r.logger.Warn("failed to track snippet usage",
			zap.String("snippet", name), zap.Error(err))
	}

	r.dispatcher.Publish(ctx, hooks.SnippetUsed, models.SnippetUsedEvent{
		Name:    name,
		UsedBy:  staff.ID,
		GuildID: guildID,
		Content: content,
	})

	return content, nil
}

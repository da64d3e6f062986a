package models

import "time"

// MessageEvent is published after a user message has been forwarded into a
// thread.
type MessageEvent struct {
	ThreadID    string    `json:"thread_id"`
	UserID      string    `json:"user_id"`
	GuildID     string    `json:"guild_id"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// ThreadClosedEvent is published after a thread transitions to closed.
type ThreadClosedEvent struct {
	Thread *Thread `json:"thread"`
	Reason string  `json:"reason"`
}

// UserBlockedEvent is published when staff block a user.
type UserBlockedEvent struct {
	UserID    string `json:"user_id"`
	GuildID   string `json:"guild_id"`
	BlockedBy string `json:"blocked_by"`
	Reason    string `json:"reason"`
}

// SnippetUsedEvent is published when a snippet is sent as a reply.
type SnippetUsedEvent struct {
	Name    string `json:"snippet_name"`
	UsedBy  string `json:"used_by"`
	GuildID string `json:"guild_id"`
	Content string `json:"content"`
}
